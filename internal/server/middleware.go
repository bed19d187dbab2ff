package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/panelbilling/internal/usercontext"
)

const (
	// HeaderUserID carries the panel user resolved by the fronting panel.
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// UserRequired rejects requests without a valid panel user.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userFromHeader(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		bindUser(c, userID)
		c.Next()
	}
}

// OptionalUser binds the panel user when the header is present and valid.
func OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := userFromHeader(c); ok {
			bindUser(c, userID)
		}
		c.Next()
	}
}

func userFromHeader(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bindUser(c *gin.Context, userID snowflake.ID) {
	c.Set(contextUserIDKey, userID.String())
	c.Request = c.Request.WithContext(usercontext.WithUserID(c.Request.Context(), userID))
}

func currentUser(c *gin.Context) (snowflake.ID, bool) {
	return usercontext.UserIDFromContext(c.Request.Context())
}
