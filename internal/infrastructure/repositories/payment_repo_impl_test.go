package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

func newTransfer(taskID int64, source string, status entities.TransferStatus) *entities.PaymentTransfer {
	return &entities.PaymentTransfer{
		TaskID:   taskID,
		TakerID:  "20000002",
		PosterID: "10000001",
		Amount:   decimal.RequireFromString("27.00"),
		Currency: "GBP",
		Status:   status,
		Metadata: entities.TransferMetadata{TransferSource: source, TaskID: taskID, ApplicationFee: "3.00", ApplicationFeePence: 300},
	}
}

func TestPaymentTransferRepository_OneActiveAutoConfirmPerTask(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentTransferRepository(db)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	first := newTransfer(1, entities.TransferSourceAutoConfirm, entities.TransferStatusPending)
	require.NoError(t, repo.Create(ctx, first))

	err := uow.Do(ctx, func(txCtx context.Context) error {
		dupErr := repo.Create(txCtx, newTransfer(1, entities.TransferSourceAutoConfirm, entities.TransferStatusPending))
		require.ErrorIs(t, dupErr, domainerrors.ErrAlreadyExists)
		// the enclosing transaction stays usable after the failed insert
		return repo.Create(txCtx, newTransfer(1, entities.TransferSourceManualConfirm, entities.TransferStatusPending))
	})
	require.NoError(t, err)

	first.Status = entities.TransferStatusFailed
	require.NoError(t, repo.Update(ctx, first))
	require.NoError(t, repo.Create(ctx, newTransfer(1, entities.TransferSourceAutoConfirm, entities.TransferStatusSucceeded)))

	list, err := repo.ListByTask(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, entities.TransferSourceAutoConfirm, list[0].Metadata.TransferSource)
	assert.Equal(t, int64(300), list[0].Metadata.ApplicationFeePence)

	sum, err := repo.SumSucceeded(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("27")), sum.String())

	empty, err := repo.SumSucceeded(ctx, 2)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestPaymentTransferRepository_ListDue(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentTransferRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newTransfer(1, entities.TransferSourceManualConfirm, entities.TransferStatusRetrying)
	past := now.Add(-time.Minute)
	due.NextRetryAt = &past
	due.Attempts = 1
	require.NoError(t, repo.Create(ctx, due))

	later := newTransfer(2, entities.TransferSourceManualConfirm, entities.TransferStatusRetrying)
	future := now.Add(time.Hour)
	later.NextRetryAt = &future
	require.NoError(t, repo.Create(ctx, later))

	require.NoError(t, repo.Create(ctx, newTransfer(3, entities.TransferSourceManualConfirm, entities.TransferStatusPending)))
	require.NoError(t, repo.Create(ctx, newTransfer(4, entities.TransferSourceManualConfirm, entities.TransferStatusSucceeded)))

	list, err := repo.ListDue(ctx, now, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	list, err = repo.ListDue(ctx, now, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, list, 2, "a pending row older than the stale cutoff is picked up")
}

func TestRefundDisputeCancelRepositories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	refunds := NewRefundRepository(db)
	disputes := NewDisputeRepository(db)
	cancels := NewCancelRequestRepository(db)

	rr := &entities.RefundRequest{TaskID: 1, PosterID: "10000001", Reason: "no show", Amount: decimal.RequireFromString("10"), Status: entities.RefundStatusPending}
	require.NoError(t, refunds.Create(ctx, rr))
	active, err := refunds.HasActive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, active)

	reviewer := "A0001"
	rr.Status = entities.RefundStatusApproved
	rr.ReviewerID = &reviewer
	rr.ProviderRefundID.SetValid("re_1")
	require.NoError(t, refunds.Update(ctx, rr))
	active, err = refunds.HasActive(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)
	got, err := refunds.GetByID(ctx, rr.ID)
	require.NoError(t, err)
	assert.Equal(t, "re_1", got.ProviderRefundID.String)

	d := &entities.TaskDispute{TaskID: 1, PosterID: "10000001", Reason: "quality", Status: entities.DisputeStatusPending}
	require.NoError(t, disputes.Create(ctx, d))
	pending, err := disputes.HasPending(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pending)
	stale, err := disputes.ListStalePending(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	svc := entities.ReviewerService
	cr := &entities.TaskCancelRequest{TaskID: 1, RequesterID: "20000002", Reason: "sick", Status: entities.CancelRequestPending}
	require.NoError(t, cancels.Create(ctx, cr))
	pending, err = cancels.HasPending(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pending)

	cr.Status = entities.CancelRequestApproved
	cr.ReviewerType = &svc
	cr.ServiceID = strPtr("CS001")
	require.NoError(t, cancels.Update(ctx, cr))
	reviewed, err := cancels.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	require.NotNil(t, reviewed.ReviewerType)
	assert.Equal(t, entities.ReviewerService, *reviewed.ReviewerType)

	require.ErrorIs(t, disputes.Update(ctx, &entities.TaskDispute{ID: 999}), domainerrors.ErrNotFound)
}
