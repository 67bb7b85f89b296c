package usecases

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/utils"
)

const msgNotAvailable = "Task is not available for acceptance"

func addHistory(ctx context.Context, tasks repositories.TaskRepository, taskID int64, userID, action, remark string, now time.Time) error {
	h := &entities.TaskHistory{
		TaskID:    taskID,
		Action:    action,
		Remark:    remark,
		Timestamp: now,
	}
	if userID != "" {
		h.UserID = &userID
	}
	return tasks.AddHistory(ctx, h)
}

// taskVars returns template variables for task plus extra key/value pairs.
func taskVars(task *entities.Task, extra ...string) map[string]string {
	vars := map[string]string{
		"task_title": task.Title,
		"task_id":    strconv.FormatInt(task.ID, 10),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		vars[extra[i]] = extra[i+1]
	}
	return vars
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func takerOf(task *entities.Task) string {
	if task.TakerID == nil {
		return ""
	}
	return *task.TakerID
}

// getTask loads a task and maps a missing row to a 404.
func getTask(ctx context.Context, tasks repositories.TaskRepository, id int64) (*entities.Task, error) {
	task, err := tasks.GetByID(ctx, id)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("Task not found")
		}
		return nil, err
	}
	return task, nil
}

func getUser(ctx context.Context, users repositories.UserRepository, id string) (*entities.User, error) {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("User not found")
		}
		return nil, err
	}
	return user, nil
}

// remainingEscrow is escrow minus what has already been paid out.
func remainingEscrow(ctx context.Context, transfers repositories.PaymentTransferRepository, task *entities.Task) (decimal.Decimal, error) {
	paid, err := transfers.SumSucceeded(ctx, task.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return task.EscrowAmount.Sub(paid), nil
}

// reviewerType classifies a staff id by its format.
func reviewerType(id string) (entities.ReviewerType, bool) {
	switch {
	case utils.IsAdminID(id):
		return entities.ReviewerAdmin, true
	case utils.IsServiceID(id):
		return entities.ReviewerService, true
	}
	return "", false
}

// requireStaff checks that id names an active admin or customer-service agent.
func requireStaff(ctx context.Context, staff repositories.StaffRepository, id string, adminOnly bool) (entities.ReviewerType, error) {
	kind, ok := reviewerType(id)
	if !ok || (adminOnly && kind != entities.ReviewerAdmin) {
		return "", domainerrors.Forbidden("Reviewer is not authorised")
	}
	s, err := staff.GetByID(ctx, id)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return "", domainerrors.Forbidden("Reviewer is not authorised")
		}
		return "", err
	}
	if !s.IsActive || s.IsService != (kind == entities.ReviewerService) {
		return "", domainerrors.Forbidden("Reviewer is not authorised")
	}
	return kind, nil
}

func adminIDs(ctx context.Context, staff repositories.StaffRepository) ([]string, error) {
	admins, err := staff.ListActiveAdmins(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids, nil
}
