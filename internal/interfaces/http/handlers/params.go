package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/middleware"
	"link2ur.backend/internal/interfaces/http/response"
)

// pathID parses a positive integer path parameter, writing 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, domainerrors.BadRequest("Invalid "+name))
		return 0, false
	}
	return id, true
}

// currentUser returns the session user, writing 401 when absent.
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("User not authenticated"))
		return "", false
	}
	return userID, true
}

// currentStaff returns the acting admin or service id, writing 401 when absent.
func currentStaff(c *gin.Context) (string, bool) {
	staffID, ok := middleware.GetStaffID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("Staff authentication required"))
		return "", false
	}
	return staffID, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// bindOptionalJSON binds the body when one was sent; empty bodies are fine.
func bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return false
	}
	return true
}
