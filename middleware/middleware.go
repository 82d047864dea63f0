package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/config"
	"github.com/raihanakbr/lokapasar/util"
	"gorm.io/gorm"
)

// Context keys set by the middleware chain.
const (
	DBKey      = "db"
	UserIDKey  = "user_id"
	IsStaffKey = "is_staff"
	TokenKey   = "session_token"
)

// CORSMiddleware configures CORS headers for incoming requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Content-Type", "application/json")

		// For preflight requests, respond with 204 and abort further processing.
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DatabaseMiddleware injects the gorm DB into the request context.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(DBKey, db)
		c.Next()
	}
}

// GetDB retrieves the gorm DB set by DatabaseMiddleware, or nil.
func GetDB(c *gin.Context) *gorm.DB {
	if v, ok := c.Get(DBKey); ok {
		if db, ok := v.(*gorm.DB); ok {
			return db
		}
	}
	return nil
}

// GetUserID returns the authenticated user ID set by ValidateLoginToken.
func GetUserID(c *gin.Context) (uint, bool) {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uint); ok {
			return id, true
		}
	}
	return 0, false
}

// IsStaffUser reports whether the authenticated user carries the staff flag.
func IsStaffUser(c *gin.Context) bool {
	if v, ok := c.Get(IsStaffKey); ok {
		if staff, ok := v.(bool); ok {
			return staff
		}
	}
	return false
}

// parseSessionValue parses the "userID:staffFlag" value cached in Redis for a
// session token. A zero user ID is invalid.
func parseSessionValue(raw string) (uint, bool, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, false, fmt.Errorf("malformed session value")
	}
	id, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || id == 0 {
		return 0, false, fmt.Errorf("malformed session user id")
	}
	staff, err := strconv.ParseBool(parts[1])
	if err != nil {
		return 0, false, fmt.Errorf("malformed session staff flag")
	}
	return uint(id), staff, nil
}

// ValidateLoginToken authenticates the request from the session-token header.
// Redis is the fast path; anything other than a clean cache hit falls back to
// the sessions table so a Redis outage never locks users out.
func ValidateLoginToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("session-token")
		if token == "" {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Session token required",
				Err: fmt.Errorf("missing session-token header"),
			})
			c.Abort()
			return
		}

		db := GetDB(c)
		if db == nil {
			util.CallServerError(c, util.APIErrorParams{
				Msg: "Database connection not available",
				Err: fmt.Errorf("db not found in context"),
			})
			c.Abort()
			return
		}

		if rdb := config.GetRedisClient(); rdb != nil {
			raw, err := rdb.Get(context.Background(), fmt.Sprintf("session:%s", token)).Result()
			if err == nil {
				if userID, staff, parseErr := parseSessionValue(raw); parseErr == nil {
					c.Set(UserIDKey, userID)
					c.Set(IsStaffKey, staff)
					c.Set(TokenKey, token)
					c.Next()
					return
				}
			}
		}

		var result struct {
			UserID  uint
			IsStaff bool
		}
		err := db.Table("sessions").
			Select("sessions.user_id, users.is_staff").
			Joins("JOIN users ON sessions.user_id = users.id").
			Where("session_token = ? AND expires_at > ? AND sessions.deleted_at IS NULL", token, time.Now()).
			First(&result).Error
		if err != nil {
			util.LogUnauthorizedAccess("", "", c.ClientIP(), c.Request.URL.Path, "invalid or expired session token")
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Invalid or expired session token",
				Err: fmt.Errorf("session not found"),
			})
			c.Abort()
			return
		}

		c.Set(UserIDKey, result.UserID)
		c.Set(IsStaffKey, result.IsStaff)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// RequireStaff gates security administration endpoints. Must run after
// ValidateLoginToken.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsStaffUser(c) {
			userID, _ := GetUserID(c)
			util.LogUnauthorizedAccess(fmt.Sprintf("%d", userID), "", c.ClientIP(), c.Request.URL.Path, "staff access required")
			util.CallForbidden(c, util.APIErrorParams{
				Msg: "Staff access required",
				Err: fmt.Errorf("insufficient permissions"),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
