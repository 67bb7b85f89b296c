package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/jobs"
	"link2ur.backend/internal/interfaces/http/response"
)

type DisputeService interface {
	ResolveDispute(ctx context.Context, reviewerID string, disputeID int64, resolution string) (*entities.TaskDispute, error)
}

type CancelReviewService interface {
	ReviewCancel(ctx context.Context, reviewerID string, requestID int64, approve bool, comment string) (*entities.TaskCancelRequest, error)
	DeleteTask(ctx context.Context, adminID string, taskID int64) error
}

type RefundReviewService interface {
	ReviewRefund(ctx context.Context, reviewerID string, refundID int64, approve bool, comment string) (*entities.RefundRequest, error)
}

type JobRunner interface {
	Jobs() []jobs.Job
	RunOnce(ctx context.Context, name string) (int, error)
}

// AdminHandler serves the staff review queue and job operations. Callers
// are identified by StaffAuth.
type AdminHandler struct {
	disputes DisputeService
	cancels  CancelReviewService
	refunds  RefundReviewService
	jobs     JobRunner
}

func NewAdminHandler(disputes DisputeService, cancels CancelReviewService, refunds RefundReviewService, runner JobRunner) *AdminHandler {
	return &AdminHandler{disputes: disputes, cancels: cancels, refunds: refunds, jobs: runner}
}

type resolveDisputeRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// ResolveDispute closes a dispute with a note
// POST /api/admin/disputes/:id/resolve
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	staffID, ok := currentStaff(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Resolution) == "" {
		response.Error(c, domainerrors.BadRequest("resolution is required"))
		return
	}

	dispute, err := h.disputes.ResolveDispute(c.Request.Context(), staffID, id, req.Resolution)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dispute)
}

type reviewDecisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Comment string `json:"comment"`
}

func bindDecision(c *gin.Context) (reviewDecisionRequest, bool) {
	var req reviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest("approve is required"))
		return req, false
	}
	return req, true
}

// ReviewCancelRequest approves or rejects a participant's cancel request
// POST /api/admin/cancel-requests/:id/review
func (h *AdminHandler) ReviewCancelRequest(c *gin.Context) {
	staffID, ok := currentStaff(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, ok := bindDecision(c)
	if !ok {
		return
	}

	reviewed, err := h.cancels.ReviewCancel(c.Request.Context(), staffID, id, *req.Approve, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, reviewed)
}

// ReviewRefund approves (and executes) or rejects a refund request
// POST /api/admin/refunds/:id/review
func (h *AdminHandler) ReviewRefund(c *gin.Context) {
	staffID, ok := currentStaff(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, ok := bindDecision(c)
	if !ok {
		return
	}

	refund, err := h.refunds.ReviewRefund(c.Request.Context(), staffID, id, *req.Approve, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, refund)
}

// DeleteTask removes a task with all of its dependent rows and files
// DELETE /api/admin/tasks/:id
func (h *AdminHandler) DeleteTask(c *gin.Context) {
	staffID, ok := currentStaff(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.cancels.DeleteTask(c.Request.Context(), staffID, id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type jobView struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
	Enabled  bool   `json:"enabled"`
}

// ListJobs lists the scheduled maintenance jobs
// GET /api/admin/jobs
func (h *AdminHandler) ListJobs(c *gin.Context) {
	registered := h.jobs.Jobs()
	out := make([]jobView, 0, len(registered))
	for _, j := range registered {
		out = append(out, jobView{Name: j.Name, Interval: j.Interval.String(), Enabled: j.Enabled})
	}
	response.Success(c, http.StatusOK, gin.H{"jobs": out})
}

// RunJob runs one maintenance job immediately
// POST /api/admin/jobs/:name/run
func (h *AdminHandler) RunJob(c *gin.Context) {
	name := c.Param("name")
	items, err := h.jobs.RunOnce(c.Request.Context(), name)
	if errors.Is(err, jobs.ErrUnknownJob) {
		response.Error(c, domainerrors.NotFound("Unknown job "+name))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"job": name, "items": items})
}

