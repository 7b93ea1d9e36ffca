package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/followgate/internal/authkit"
)

// HandleWhoAmI returns the caller's current profile.
func HandleWhoAmI() gin.HandlerFunc {
	return authkit.WithCaller(func(contextGin *gin.Context, caller authkit.Caller) {
		contextGin.JSON(http.StatusOK, gin.H{"user": authkit.PublicProfile(caller.Identity)})
	})
}
