package follow

import "time"

// Status is the lifecycle state of a follow edge.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Edge is a directed follow relationship from RequesterID to TargetID.
// At most one edge exists per (RequesterID, TargetID) pair.
type Edge struct {
	ID          string
	RequesterID string
	TargetID    string
	Status      Status
	CreatedAt   time.Time
}

// Action names a client-requested relationship change.
type Action string

const (
	ActionFollow   Action = "follow"
	ActionRequest  Action = "request"
	ActionUnfollow Action = "unfollow"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

// Outcome identifies what a relationship command did.
type Outcome string

const (
	OutcomeFollowed         Outcome = "followed"
	OutcomeRequested        Outcome = "requested"
	OutcomeAlreadyFollowing Outcome = "already_following"
	OutcomeAlreadyRequested Outcome = "already_requested"
	OutcomeUnfollowed       Outcome = "unfollowed"
	OutcomeNothingToRemove  Outcome = "nothing_to_remove"
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected         Outcome = "rejected"
)

type outcomeDetail struct {
	success bool
	message string
	status  Status
}

var outcomeDetails = map[Outcome]outcomeDetail{
	OutcomeFollowed:         {success: true, message: "Followed successfully", status: StatusAccepted},
	OutcomeRequested:        {success: true, message: "Follow request sent", status: StatusPending},
	OutcomeAlreadyFollowing: {success: false, message: "Already following", status: StatusAccepted},
	OutcomeAlreadyRequested: {success: false, message: "Follow request already sent", status: StatusPending},
	OutcomeUnfollowed:       {success: true, message: "Unfollowed successfully"},
	OutcomeNothingToRemove:  {success: false, message: "Nothing to remove"},
	OutcomeApproved:         {success: true, message: "Follow request approved", status: StatusAccepted},
	OutcomeRejected:         {success: true, message: "Follow request rejected", status: StatusRejected},
}

// Result is the client-facing report of a relationship command.
// Soft conflicts are reported with Success=false rather than as errors.
type Result struct {
	Success bool
	Outcome Outcome
	Message string
	Status  Status
}

// ResultFor renders the Result for an outcome.
func ResultFor(outcome Outcome) Result {
	detail := outcomeDetails[outcome]
	return Result{
		Success: detail.success,
		Outcome: outcome,
		Message: detail.message,
		Status:  detail.status,
	}
}
