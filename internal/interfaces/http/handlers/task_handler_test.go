package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/usecases"
)

type taskServiceStub struct {
	createFn     func(ctx context.Context, posterID string, in usecases.CreateTaskInput) (*entities.Task, error)
	listFn       func(ctx context.Context, q usecases.TaskListQuery) ([]*entities.Task, int64, error)
	getFn        func(ctx context.Context, taskID int64) (*entities.Task, error)
	transitionFn func(ctx context.Context, userID string, taskID int64) (*entities.Task, error)
	disputeFn    func(ctx context.Context, posterID string, taskID int64, reason string) (*entities.TaskDispute, error)
	reviewFn     func(ctx context.Context, userID string, taskID int64, in usecases.ReviewInput) (*entities.Review, error)
}

func (s taskServiceStub) Create(ctx context.Context, posterID string, in usecases.CreateTaskInput) (*entities.Task, error) {
	return s.createFn(ctx, posterID, in)
}
func (s taskServiceStub) List(ctx context.Context, q usecases.TaskListQuery) ([]*entities.Task, int64, error) {
	return s.listFn(ctx, q)
}
func (s taskServiceStub) Get(ctx context.Context, taskID int64) (*entities.Task, error) {
	return s.getFn(ctx, taskID)
}
func (s taskServiceStub) Cities() []string { return []string{"London", "Online"} }
func (s taskServiceStub) Accept(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	return s.transitionFn(ctx, userID, taskID)
}
func (s taskServiceStub) ApproveTaker(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	return s.transitionFn(ctx, userID, taskID)
}
func (s taskServiceStub) RejectTaker(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	return s.transitionFn(ctx, userID, taskID)
}
func (s taskServiceStub) Complete(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	return s.transitionFn(ctx, userID, taskID)
}
func (s taskServiceStub) Confirm(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	return s.transitionFn(ctx, userID, taskID)
}
func (s taskServiceStub) RaiseDispute(ctx context.Context, posterID string, taskID int64, reason string) (*entities.TaskDispute, error) {
	return s.disputeFn(ctx, posterID, taskID, reason)
}
func (s taskServiceStub) History(context.Context, int64) ([]*entities.TaskHistory, error) {
	return []*entities.TaskHistory{}, nil
}
func (s taskServiceStub) Review(ctx context.Context, userID string, taskID int64, in usecases.ReviewInput) (*entities.Review, error) {
	return s.reviewFn(ctx, userID, taskID, in)
}

type cancellationStub struct {
	cancelFn func(ctx context.Context, userID string, taskID int64, reason string) (*usecases.CancelResult, error)
}

func (s cancellationStub) Cancel(ctx context.Context, userID string, taskID int64, reason string) (*usecases.CancelResult, error) {
	return s.cancelFn(ctx, userID, taskID, reason)
}

func TestTaskHandler_CreateTask(t *testing.T) {
	var got usecases.CreateTaskInput
	h := NewTaskHandler(taskServiceStub{
		createFn: func(_ context.Context, posterID string, in usecases.CreateTaskInput) (*entities.Task, error) {
			assert.Equal(t, testPoster, posterID)
			got = in
			return &entities.Task{ID: 7, Title: in.Title, PosterID: posterID}, nil
		},
	}, nil)

	r := newTestRouter()
	r.POST("/api/tasks", asUser(testPoster), h.CreateTask)

	w := perform(r, http.MethodPost, "/api/tasks", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := `{"title":"Move boxes","description":"Two flights","task_type":"Housekeeping","location":"London",
		"reward":"30.50","is_flexible":true,"images":["a.png"],"is_public":false}`
	w = perform(r, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"id":7`)
	assert.True(t, got.BaseReward.Equal(decimal.RequireFromString("30.5")))
	assert.True(t, got.IsFlexible)
	assert.Nil(t, got.Deadline)
	require.NotNil(t, got.IsPublic)
	assert.False(t, *got.IsPublic)
	assert.Equal(t, []string{"a.png"}, got.Images)

	unauth := newTestRouter()
	unauth.POST("/api/tasks", h.CreateTask)
	assert.Equal(t, http.StatusUnauthorized, perform(unauth, http.MethodPost, "/api/tasks", body).Code)
}

func TestTaskHandler_ListTasks(t *testing.T) {
	h := NewTaskHandler(taskServiceStub{
		listFn: func(_ context.Context, q usecases.TaskListQuery) ([]*entities.Task, int64, error) {
			assert.Equal(t, 2, q.Page)
			assert.Equal(t, 20, q.PageSize, "defaults are applied before the query")
			assert.Equal(t, "reward_desc", q.SortBy)
			assert.Equal(t, "London", q.Location)
			assert.Equal(t, "boxes", q.Keyword)
			return []*entities.Task{{ID: 1}, {ID: 2}}, 45, nil
		},
	}, nil)
	r := newTestRouter()
	r.GET("/api/tasks", h.ListTasks)

	w := perform(r, http.MethodGet, "/api/tasks?page=2&sort_by=reward_desc&location=London&keyword=boxes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalCount":45`)
	assert.Contains(t, w.Body.String(), `"totalPages":3`)
}

func TestTaskHandler_GetTask(t *testing.T) {
	h := NewTaskHandler(taskServiceStub{
		getFn: func(_ context.Context, id int64) (*entities.Task, error) {
			if id == 404 {
				return nil, domainerrors.NotFound("Task not found")
			}
			return &entities.Task{ID: id}, nil
		},
	}, nil)
	r := newTestRouter()
	r.GET("/api/tasks/:id", h.GetTask)
	r.GET("/api/cities", h.Cities)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/tasks/5", "").Code)
	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/api/tasks/404", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodGet, "/api/tasks/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodGet, "/api/tasks/-1", "").Code)
	assert.Contains(t, perform(r, http.MethodGet, "/api/cities", "").Body.String(), "Online")
}

func TestTaskHandler_TransitionsMapErrors(t *testing.T) {
	errs := map[int64]error{
		1: nil,
		2: domainerrors.Conflict("Task is not available for acceptance"),
		3: domainerrors.Forbidden("Your user level is too low for this task"),
		4: domainerrors.ErrRaceLost,
	}
	h := NewTaskHandler(taskServiceStub{
		transitionFn: func(_ context.Context, userID string, id int64) (*entities.Task, error) {
			assert.Equal(t, testTaker, userID)
			if err := errs[id]; err != nil {
				return nil, err
			}
			return &entities.Task{ID: id, Status: entities.TaskStatusTaken}, nil
		},
	}, nil)
	r := newTestRouter()
	g := r.Group("/api/tasks/:id", asUser(testTaker))
	g.POST("/accept", h.AcceptTask)
	g.POST("/approve", h.ApproveTaker)
	g.POST("/reject", h.RejectTaker)
	g.POST("/complete", h.CompleteTask)
	g.POST("/confirm_completion", h.ConfirmCompletion)

	for _, action := range []string{"accept", "approve", "reject", "complete", "confirm_completion"} {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/tasks/1/"+action, "").Code, action)
	}
	w := perform(r, http.MethodPost, "/api/tasks/2/accept", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Task is not available for acceptance")
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/api/tasks/3/accept", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/4/accept", "").Code)
}

func TestTaskHandler_CancelTask(t *testing.T) {
	h := NewTaskHandler(nil, cancellationStub{
		cancelFn: func(_ context.Context, _ string, id int64, reason string) (*usecases.CancelResult, error) {
			if id == 1 {
				assert.Empty(t, reason)
				return &usecases.CancelResult{Cancelled: true, Task: &entities.Task{ID: 1}}, nil
			}
			assert.Equal(t, "Fell ill", reason)
			return &usecases.CancelResult{Task: &entities.Task{ID: id}, Request: &entities.TaskCancelRequest{ID: 9}}, nil
		},
	})
	r := newTestRouter()
	r.POST("/api/tasks/:id/cancel", asUser(testPoster), h.CancelTask)

	w := perform(r, http.MethodPost, "/api/tasks/1/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)

	w = perform(r, http.MethodPost, "/api/tasks/2/cancel", `{"reason":"Fell ill"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"request"`)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/2/cancel", `{"reason":`).Code)
}

func TestTaskHandler_DisputeAndReview(t *testing.T) {
	h := NewTaskHandler(taskServiceStub{
		disputeFn: func(_ context.Context, _ string, id int64, reason string) (*entities.TaskDispute, error) {
			return &entities.TaskDispute{ID: 3, TaskID: id, Reason: reason}, nil
		},
		reviewFn: func(_ context.Context, _ string, _ int64, in usecases.ReviewInput) (*entities.Review, error) {
			if in.Rating > 5 {
				return nil, domainerrors.BadRequest("Rating must be between 0.5 and 5")
			}
			return &entities.Review{ID: 1, Rating: in.Rating, IsAnonymous: in.IsAnonymous}, nil
		},
	}, nil)
	r := newTestRouter()
	r.POST("/api/tasks/:id/dispute", asUser(testPoster), h.RaiseDispute)
	r.POST("/api/tasks/:id/review", asUser(testPoster), h.ReviewTask)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/1/dispute", `{"reason":"  "}`).Code)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/api/tasks/1/dispute", `{"reason":"Not finished"}`).Code)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/1/review", `{"rating":6}`).Code)
	w := perform(r, http.MethodPost, "/api/tasks/1/review", `{"rating":4.5,"is_anonymous":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"is_anonymous":true`)
}
