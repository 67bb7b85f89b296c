package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/pkg/utils"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestSuccess(t *testing.T) {
	c, w := newContext()

	Success(c, http.StatusOK, gin.H{"ok": true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestPaginated(t *testing.T) {
	c, w := newContext()

	Paginated(c, http.StatusOK, []int{1, 2}, utils.CalculateMeta(5, 1, 2))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[1,2]`)
	assert.Contains(t, w.Body.String(), `"totalPages":3`)
}

func TestError_AppError(t *testing.T) {
	c, w := newContext()

	Error(c, domainerrors.NotFound("Task not found"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), domainerrors.CodeNotFound)
	assert.Contains(t, w.Body.String(), "Task not found")
}

func TestError_WrappedSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("load task: %w", domainerrors.ErrNotFound), http.StatusNotFound},
		{domainerrors.ErrRaceLost, http.StatusBadRequest},
		{domainerrors.ErrAttachmentShape, http.StatusUnprocessableEntity},
		{domainerrors.ErrRateLimited, http.StatusTooManyRequests},
		{domainerrors.ErrTokenInvalid, http.StatusForbidden},
		{domainerrors.Conflict("Task is not available for acceptance"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		c, w := newContext()
		Error(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestError_GenericError(t *testing.T) {
	c, w := newContext()

	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), domainerrors.CodeInternalError)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorWithError(t *testing.T) {
	c, w := newContext()

	ErrorWithError(c, http.StatusBadRequest, "ERR_X", "bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"ERR_X"`)
}

func TestAbortWithError(t *testing.T) {
	c, w := newContext()

	AbortWithError(c, domainerrors.Unauthorized("Not logged in"))
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
