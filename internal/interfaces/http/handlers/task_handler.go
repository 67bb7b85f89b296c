package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/response"
	"link2ur.backend/internal/usecases"
	"link2ur.backend/pkg/utils"
)

type TaskService interface {
	Create(ctx context.Context, posterID string, in usecases.CreateTaskInput) (*entities.Task, error)
	List(ctx context.Context, q usecases.TaskListQuery) ([]*entities.Task, int64, error)
	Get(ctx context.Context, taskID int64) (*entities.Task, error)
	Cities() []string
	Accept(ctx context.Context, userID string, taskID int64) (*entities.Task, error)
	ApproveTaker(ctx context.Context, posterID string, taskID int64) (*entities.Task, error)
	RejectTaker(ctx context.Context, posterID string, taskID int64) (*entities.Task, error)
	Complete(ctx context.Context, userID string, taskID int64) (*entities.Task, error)
	Confirm(ctx context.Context, posterID string, taskID int64) (*entities.Task, error)
	RaiseDispute(ctx context.Context, posterID string, taskID int64, reason string) (*entities.TaskDispute, error)
	History(ctx context.Context, taskID int64) ([]*entities.TaskHistory, error)
	Review(ctx context.Context, userID string, taskID int64, in usecases.ReviewInput) (*entities.Review, error)
}

type TaskCancellationService interface {
	Cancel(ctx context.Context, userID string, taskID int64, reason string) (*usecases.CancelResult, error)
}

// TaskHandler handles task lifecycle endpoints
type TaskHandler struct {
	tasks        TaskService
	cancellation TaskCancellationService
}

func NewTaskHandler(tasks TaskService, cancellation TaskCancellationService) *TaskHandler {
	return &TaskHandler{tasks: tasks, cancellation: cancellation}
}

type createTaskRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description" binding:"required"`
	TaskType    string          `json:"task_type" binding:"required"`
	Location    string          `json:"location" binding:"required"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Reward      decimal.Decimal `json:"reward"`
	Currency    string          `json:"currency"`
	IsFlexible  bool            `json:"is_flexible"`
	Deadline    *time.Time      `json:"deadline"`
	Images      []string        `json:"images"`
	IsPublic    *bool           `json:"is_public"`
}

// CreateTask publishes a new task
// POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), userID, usecases.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		TaskType:    req.TaskType,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		BaseReward:  req.Reward,
		Currency:    req.Currency,
		IsFlexible:  req.IsFlexible,
		Deadline:    req.Deadline,
		Images:      req.Images,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, task)
}

// ListTasks lists open tasks
// GET /api/tasks?page=&page_size=&task_type=&location=&keyword=&sort_by=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	q := usecases.TaskListQuery{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 0),
		TaskType: c.Query("task_type"),
		Location: c.Query("location"),
		Keyword:  c.Query("keyword"),
		SortBy:   c.Query("sort_by"),
	}.Normalized()

	tasks, total, err := h.tasks.List(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, http.StatusOK, tasks, utils.CalculateMeta(total, q.Page, q.PageSize))
}

// GetTask returns one task
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, task)
}

// Cities lists the locations accepted by the location filter
// GET /api/tasks/cities
func (h *TaskHandler) Cities(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"cities": h.tasks.Cities()})
}

// GetHistory returns the task's audit trail
// GET /api/tasks/:id/history
func (h *TaskHandler) GetHistory(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.tasks.History(c.Request.Context(), taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": history})
}

// transition runs a user-initiated state change that returns the task.
func (h *TaskHandler) transition(fn func(ctx context.Context, userID string, taskID int64) (*entities.Task, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		taskID, ok := pathID(c, "id")
		if !ok {
			return
		}
		task, err := fn(c.Request.Context(), userID, taskID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, task)
	}
}

// AcceptTask is the legacy direct claim
// POST /api/tasks/:id/accept
func (h *TaskHandler) AcceptTask(c *gin.Context) { h.transition(h.tasks.Accept)(c) }

// ApproveTaker confirms the taker of a taken task
// POST /api/tasks/:id/approve
func (h *TaskHandler) ApproveTaker(c *gin.Context) { h.transition(h.tasks.ApproveTaker)(c) }

// RejectTaker reopens a taken task
// POST /api/tasks/:id/reject
func (h *TaskHandler) RejectTaker(c *gin.Context) { h.transition(h.tasks.RejectTaker)(c) }

// CompleteTask marks the work done
// POST /api/tasks/:id/complete
func (h *TaskHandler) CompleteTask(c *gin.Context) { h.transition(h.tasks.Complete)(c) }

// ConfirmCompletion releases the escrow to the taker
// POST /api/tasks/:id/confirm_completion
func (h *TaskHandler) ConfirmCompletion(c *gin.Context) { h.transition(h.tasks.Confirm)(c) }

type reasonRequest struct {
	Reason string `json:"reason"`
}

// CancelTask cancels an open task or files a cancel request for review
// POST /api/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.cancellation.Cancel(c.Request.Context(), userID, taskID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if !res.Cancelled {
		status = http.StatusAccepted
	}
	response.Success(c, status, res)
}

// RaiseDispute contests a completion claim
// POST /api/tasks/:id/dispute
func (h *TaskHandler) RaiseDispute(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		response.Error(c, domainerrors.BadRequest("reason is required"))
		return
	}

	dispute, err := h.tasks.RaiseDispute(c.Request.Context(), userID, taskID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dispute)
}

type reviewRequest struct {
	Rating      float64 `json:"rating" binding:"required"`
	Comment     string  `json:"comment"`
	IsAnonymous bool    `json:"is_anonymous"`
}

// ReviewTask rates the other party of a completed task
// POST /api/tasks/:id/review
func (h *TaskHandler) ReviewTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	review, err := h.tasks.Review(c.Request.Context(), userID, taskID, usecases.ReviewInput{
		Rating:      req.Rating,
		Comment:     req.Comment,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, review)
}
