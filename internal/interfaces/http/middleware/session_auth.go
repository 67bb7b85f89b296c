package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/response"
	"link2ur.backend/pkg/logger"
	"link2ur.backend/pkg/redis"
	"link2ur.backend/pkg/utils"
)

const (
	SessionCookie   = "session_id"
	CSRFCookie      = "csrf_token"
	CSRFHeader      = "X-CSRF-Token"
	AdminIDHeader   = "X-Admin-ID"
	ServiceIDHeader = "X-Service-ID"

	// UserIDKey is the gin context key for the authenticated user id
	UserIDKey = "user_id"
	// StaffIDKey is the gin context key for the acting admin or service id
	StaffIDKey = "staff_id"
)

// SessionResolver looks up a session cookie; redis.SessionStore implements it.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*redis.SessionData, error)
}

// SessionAuth resolves the session cookie to a user id. Requests without a
// valid session are rejected with 401.
func SessionAuth(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || sessionID == "" {
			response.AbortWithError(c, domainerrors.Unauthorized("Not logged in"))
			return
		}

		ctx := c.Request.Context()
		session, err := sessions.GetSession(ctx, sessionID)
		if err != nil {
			if !redis.IsNil(err) {
				logger.Warn(ctx, "Session lookup failed", zap.Error(err))
			}
			response.AbortWithError(c, domainerrors.Unauthorized("Session expired, please log in again"))
			return
		}
		if !utils.IsUserID(session.UserID) {
			response.AbortWithError(c, domainerrors.Unauthorized("Session expired, please log in again"))
			return
		}

		c.Set(UserIDKey, session.UserID)
		c.Request = c.Request.WithContext(logger.WithUserID(ctx, session.UserID))
		c.Next()
	}
}

// CSRF requires the X-CSRF-Token header to match the csrf_token cookie on
// every mutating request.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookie)
		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			response.AbortWithError(c, domainerrors.Forbidden("CSRF token missing or invalid"))
			return
		}
		c.Next()
	}
}

// StaffAuth accepts requests forwarded by the admin or customer-service
// collaborator, identified by X-Admin-ID or X-Service-ID.
func StaffAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(AdminIDHeader)
		valid := utils.IsAdminID(id)
		if id == "" {
			id = c.GetHeader(ServiceIDHeader)
			valid = utils.IsServiceID(id)
		}
		if id == "" {
			response.AbortWithError(c, domainerrors.Unauthorized("Staff authentication required"))
			return
		}
		if !valid {
			response.AbortWithError(c, domainerrors.Forbidden("Invalid staff id"))
			return
		}

		c.Set(StaffIDKey, id)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), id))
		c.Next()
	}
}

// GetUserID gets the user ID from context
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// GetStaffID gets the acting staff ID from context
func GetStaffID(c *gin.Context) (string, bool) {
	id := c.GetString(StaffIDKey)
	return id, id != ""
}
