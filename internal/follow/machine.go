package follow

// Operation is the single storage statement a decision requires.
type Operation int

const (
	// OpNone leaves storage untouched.
	OpNone Operation = iota
	// OpInsert inserts a new edge, doing nothing on a uniqueness conflict.
	OpInsert
	// OpResend moves a rejected edge back to pending with a fresh timestamp.
	OpResend
	// OpDelete removes the edge if present.
	OpDelete
	// OpResolve moves a pending edge owned by the caller to accepted or rejected.
	OpResolve
)

// Command is a relationship action as seen by the state machine.
type Command struct {
	Action Action
}

// Decision is the transition chosen for a command.
// Outcome applies when the operation changes a row; Conflict applies when it changes none.
type Decision struct {
	Next      Status
	Operation Operation
	Outcome   Outcome
	Conflict  Outcome
}

// Decide maps the current edge (nil when absent) and a command to a transition.
// It performs no I/O; guards on the storage statements enforce the same preconditions under concurrency.
func Decide(current *Edge, command Command) Decision {
	switch command.Action {
	case ActionFollow, ActionRequest:
		return decideFollow(current, command.Action == ActionRequest)
	case ActionUnfollow:
		return Decision{Operation: OpDelete, Outcome: OutcomeUnfollowed, Conflict: OutcomeNothingToRemove}
	case ActionApprove:
		return decideResolve(current, StatusAccepted, OutcomeApproved)
	case ActionReject:
		return decideResolve(current, StatusRejected, OutcomeRejected)
	default:
		return Decision{Operation: OpNone}
	}
}

func decideFollow(current *Edge, request bool) Decision {
	if current == nil {
		if request {
			return Decision{Next: StatusPending, Operation: OpInsert, Outcome: OutcomeRequested, Conflict: OutcomeAlreadyRequested}
		}
		return Decision{Next: StatusAccepted, Operation: OpInsert, Outcome: OutcomeFollowed, Conflict: OutcomeAlreadyFollowing}
	}
	switch current.Status {
	case StatusRejected:
		return Decision{Next: StatusPending, Operation: OpResend, Outcome: OutcomeRequested, Conflict: OutcomeAlreadyRequested}
	case StatusPending:
		return Decision{Next: StatusPending, Operation: OpNone, Outcome: OutcomeAlreadyRequested}
	default:
		return Decision{Next: StatusAccepted, Operation: OpNone, Outcome: OutcomeAlreadyFollowing}
	}
}

// decideResolve treats an unknown current edge as resolvable; the storage
// statement only matches pending edges targeting the caller.
func decideResolve(current *Edge, next Status, outcome Outcome) Decision {
	if current != nil && current.Status != StatusPending {
		return Decision{Operation: OpNone}
	}
	return Decision{Next: next, Operation: OpResolve, Outcome: outcome}
}
