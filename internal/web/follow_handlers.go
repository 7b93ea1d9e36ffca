package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tyemirov/followgate/internal/authkit"
	"github.com/tyemirov/followgate/internal/follow"
	"go.uber.org/zap"
)

// FollowRouteDependencies groups the collaborators of the relationship routes.
type FollowRouteDependencies struct {
	Engine  *follow.Engine
	Limiter *CallerRateLimiter
	Logger  *zap.Logger
}

type followRequestBody struct {
	UserID    string `json:"userId"`
	TargetID  string `json:"targetId"`
	Action    string `json:"action"`
	IsRequest bool   `json:"isRequest"`
}

type handleRequestBody struct {
	Action  string `json:"action"`
	OwnerID string `json:"ownerId"`
}

type followResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type pendingRequestView struct {
	ID          string `json:"id"`
	RequesterID string `json:"requesterId"`
	Username    string `json:"username"`
	ProfilePic  string `json:"profilePic"`
}

type counterpartView struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

// profileView keeps the count keys the web client reads.
type profileView struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePic     string `json:"profilePic"`
	AccountType    string `json:"accountType"`
	FollowersCount int64  `json:"FollowersCount"`
	FollowingCount int64  `json:"FollowingCount"`
}

// MountFollowRoutes registers the relationship routes on a group already guarded by authkit.RequireBearer.
func MountFollowRoutes(router gin.IRouter, dependencies FollowRouteDependencies) {
	handlers := followHandlers{engine: dependencies.Engine, logger: dependencies.Logger}
	if handlers.logger == nil {
		handlers.logger = zap.NewNop()
	}
	var throttle gin.HandlerFunc = func(contextGin *gin.Context) { contextGin.Next() }
	if dependencies.Limiter != nil {
		throttle = dependencies.Limiter.Middleware(handlers.logger)
	}

	router.POST("/follow", throttle, authkit.WithCaller(handlers.follow))
	router.GET("/follow-req/:ownerId", authkit.WithCaller(handlers.pendingRequests))
	router.PUT("/handle-follow-req/:requestId", throttle, authkit.WithCaller(handlers.handleRequest))
	router.POST("/handle-follow-req/:requestId", throttle, authkit.WithCaller(handlers.handleRequest))
	router.GET("/followers/:id", authkit.WithCaller(handlers.followers))
	router.GET("/followings/:id", authkit.WithCaller(handlers.following))
	router.GET("/profile/:id", authkit.WithCaller(handlers.profile))
}

type followHandlers struct {
	engine *follow.Engine
	logger *zap.Logger
}

func (handlers followHandlers) follow(contextGin *gin.Context, caller authkit.Caller) {
	var body followRequestBody
	if err := contextGin.ShouldBindJSON(&body); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	result, err := handlers.engine.Follow(contextGin.Request.Context(), follow.FollowInput{
		CallerID:           caller.ID(),
		ClaimedRequesterID: body.UserID,
		TargetID:           body.TargetID,
		Action:             follow.Action(body.Action),
		IsRequest:          body.IsRequest,
	})
	if err != nil {
		handlers.abortWithError(contextGin, "api.follow", err)
		return
	}
	contextGin.JSON(http.StatusOK, toFollowResponse(result))
}

func (handlers followHandlers) handleRequest(contextGin *gin.Context, caller authkit.Caller) {
	var body handleRequestBody
	if err := contextGin.ShouldBindJSON(&body); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	result, err := handlers.engine.HandleRequest(contextGin.Request.Context(), follow.HandleInput{
		CallerID:  caller.ID(),
		RequestID: contextGin.Param("requestId"),
		Action:    follow.Action(body.Action),
	})
	if err != nil {
		handlers.abortWithError(contextGin, "api.handle_follow_request", err)
		return
	}
	contextGin.JSON(http.StatusOK, followResponse{Success: result.Success, Message: result.Message})
}

func (handlers followHandlers) pendingRequests(contextGin *gin.Context, caller authkit.Caller) {
	ownerID, parseErr := uuid.Parse(contextGin.Param("ownerId"))
	if parseErr != nil || ownerID.String() != caller.ID() {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}
	requests, err := handlers.engine.PendingRequests(contextGin.Request.Context(), caller.ID())
	if err != nil {
		handlers.abortWithError(contextGin, "api.follow_requests", err)
		return
	}
	views := make([]pendingRequestView, 0, len(requests))
	for _, request := range requests {
		views = append(views, pendingRequestView{
			ID:          request.ID,
			RequesterID: request.RequesterID,
			Username:    request.Username,
			ProfilePic:  request.ProfilePic,
		})
	}
	contextGin.JSON(http.StatusOK, gin.H{"pendingRequests": views})
}

func (handlers followHandlers) followers(contextGin *gin.Context, caller authkit.Caller) {
	listing, err := handlers.engine.Followers(contextGin.Request.Context(), contextGin.Param("id"), pageFromQuery(contextGin))
	if err != nil {
		handlers.abortWithError(contextGin, "api.followers", err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"followers": toCounterpartViews(listing.Entries),
		"page":      listing.Page.Number,
		"limit":     listing.Page.Limit,
	})
}

func (handlers followHandlers) following(contextGin *gin.Context, caller authkit.Caller) {
	listing, err := handlers.engine.Following(contextGin.Request.Context(), contextGin.Param("id"), pageFromQuery(contextGin))
	if err != nil {
		handlers.abortWithError(contextGin, "api.followings", err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"following": toCounterpartViews(listing.Entries),
		"page":      listing.Page.Number,
		"limit":     listing.Page.Limit,
	})
}

func (handlers followHandlers) profile(contextGin *gin.Context, caller authkit.Caller) {
	profile, err := handlers.engine.Profile(contextGin.Request.Context(), contextGin.Param("id"))
	if err != nil {
		handlers.abortWithError(contextGin, "api.profile", err)
		return
	}
	contextGin.JSON(http.StatusOK, profileView{
		ID:             profile.ID,
		Username:       profile.Username,
		ProfilePic:     profile.ProfilePic,
		AccountType:    profile.AccountType,
		FollowersCount: profile.FollowersCount,
		FollowingCount: profile.FollowingCount,
	})
}

func (handlers followHandlers) abortWithError(contextGin *gin.Context, code string, err error) {
	status, message := classifyFollowError(err)
	if status == http.StatusInternalServerError {
		handlers.logger.Error("relationship storage failure",
			zap.String("code", code+".storage_error"),
			zap.String("request_id", RequestIDFromContext(contextGin)),
			zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"message": message})
}

func classifyFollowError(err error) (int, string) {
	switch {
	case errors.Is(err, follow.ErrInvalidIdentifier):
		return http.StatusBadRequest, "Invalid user id"
	case errors.Is(err, follow.ErrUnsupportedAction):
		return http.StatusBadRequest, "Unsupported action"
	case errors.Is(err, follow.ErrSelfFollow):
		return http.StatusBadRequest, "You cannot follow yourself"
	case errors.Is(err, follow.ErrRequesterMismatch):
		return http.StatusBadRequest, "userId does not match the authenticated user"
	case errors.Is(err, follow.ErrRequestNotFound):
		return http.StatusNotFound, "Request not found or already processed"
	case errors.Is(err, follow.ErrProfileNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func toFollowResponse(result follow.Result) followResponse {
	return followResponse{Success: result.Success, Message: result.Message, Status: string(result.Status)}
}

func toCounterpartViews(entries []follow.Counterpart) []counterpartView {
	views := make([]counterpartView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, counterpartView{ID: entry.ID, Username: entry.Username, ProfilePic: entry.ProfilePic})
	}
	return views
}

// pageFromQuery reads page and limit; malformed values fall back to the defaults.
func pageFromQuery(contextGin *gin.Context) follow.Page {
	number, _ := strconv.Atoi(contextGin.Query("page"))
	limit, _ := strconv.Atoi(contextGin.Query("limit"))
	return follow.NewPage(number, limit)
}
