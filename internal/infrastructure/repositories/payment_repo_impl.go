package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/models"
)

// PaymentTransferRepository implements escrow transfer operations
type PaymentTransferRepository struct {
	db *gorm.DB
}

// NewPaymentTransferRepository creates a new transfer repository
func NewPaymentTransferRepository(db *gorm.DB) *PaymentTransferRepository {
	return &PaymentTransferRepository{db: db}
}

// Create inserts a transfer row. The partial unique index on auto-confirm
// transfers turns a concurrent second insert into ErrAlreadyExists.
func (r *PaymentTransferRepository) Create(ctx context.Context, t *entities.PaymentTransfer) error {
	m := toTransferModel(t)
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	t.ID = m.ID
	t.CreatedAt = m.CreatedAt
	t.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentTransferRepository) GetByID(ctx context.Context, id int64) (*entities.PaymentTransfer, error) {
	var m models.PaymentTransfer
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toTransferEntity(&m), nil
}

func (r *PaymentTransferRepository) Update(ctx context.Context, t *entities.PaymentTransfer) error {
	m := toTransferModel(t)
	m.UpdatedAt = utcNow()
	result := conn(ctx, r.db).Model(&models.PaymentTransfer{ID: t.ID}).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	t.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentTransferRepository) ListByTask(ctx context.Context, taskID int64) ([]*entities.PaymentTransfer, error) {
	var ms []models.PaymentTransfer
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	return toTransferEntities(ms), nil
}

// SumSucceeded totals the amount already paid out for the task
func (r *PaymentTransferRepository) SumSucceeded(ctx context.Context, taskID int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := conn(ctx, r.db).Model(&models.PaymentTransfer{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("task_id = ? AND status = ?", taskID, entities.TransferStatusSucceeded).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListDue returns transfers the sweeper should attempt now
func (r *PaymentTransferRepository) ListDue(ctx context.Context, now, stalePending time.Time, limit int) ([]*entities.PaymentTransfer, error) {
	var ms []models.PaymentTransfer
	err := applyLock(ctx, conn(ctx, r.db)).
		Where("(status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status = ? AND created_at < ?)",
			entities.TransferStatusRetrying, now, entities.TransferStatusPending, stalePending).
		Order("id ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toTransferEntities(ms), nil
}

func toTransferEntities(ms []models.PaymentTransfer) []*entities.PaymentTransfer {
	out := make([]*entities.PaymentTransfer, 0, len(ms))
	for i := range ms {
		out = append(out, toTransferEntity(&ms[i]))
	}
	return out
}

func toTransferModel(t *entities.PaymentTransfer) *models.PaymentTransfer {
	return &models.PaymentTransfer{
		ID:                 t.ID,
		TaskID:             t.TaskID,
		TakerID:            t.TakerID,
		PosterID:           t.PosterID,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Status:             string(t.Status),
		TransferSource:     stringPtr(t.Metadata.TransferSource),
		ProviderTransferID: t.ProviderTransferID.Ptr(),
		Metadata:           datatypes.NewJSONType(t.Metadata),
		Attempts:           t.Attempts,
		NextRetryAt:        t.NextRetryAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func toTransferEntity(m *models.PaymentTransfer) *entities.PaymentTransfer {
	return &entities.PaymentTransfer{
		ID:                 m.ID,
		TaskID:             m.TaskID,
		TakerID:            m.TakerID,
		PosterID:           m.PosterID,
		Amount:             m.Amount,
		Currency:           m.Currency,
		Status:             entities.TransferStatus(m.Status),
		ProviderTransferID: null.StringFromPtr(m.ProviderTransferID),
		Metadata:           m.Metadata.Data(),
		Attempts:           m.Attempts,
		NextRetryAt:        m.NextRetryAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// RefundRepository implements refund request operations
type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, rr *entities.RefundRequest) error {
	m := toRefundModel(rr)
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	rr.ID = m.ID
	rr.CreatedAt = m.CreatedAt
	return nil
}

func (r *RefundRepository) GetByID(ctx context.Context, id int64) (*entities.RefundRequest, error) {
	var m models.RefundRequest
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &entities.RefundRequest{
		ID:               m.ID,
		TaskID:           m.TaskID,
		PosterID:         m.PosterID,
		Reason:           m.Reason,
		Amount:           m.Amount,
		Status:           entities.RefundStatus(m.Status),
		ReviewerID:       m.ReviewerID,
		ReviewerComment:  m.ReviewerComment,
		ProviderRefundID: null.StringFromPtr(m.ProviderRefundID),
		CreatedAt:        m.CreatedAt,
		ReviewedAt:       m.ReviewedAt,
	}, nil
}

func (r *RefundRepository) Update(ctx context.Context, rr *entities.RefundRequest) error {
	return updateAll(ctx, r.db, &models.RefundRequest{ID: rr.ID}, toRefundModel(rr))
}

// HasActive reports a pending or processing refund on the task
func (r *RefundRepository) HasActive(ctx context.Context, taskID int64) (bool, error) {
	return exists(ctx, r.db, &models.RefundRequest{}, "task_id = ? AND status IN ?", taskID,
		[]string{string(entities.RefundStatusPending), string(entities.RefundStatusProcessing)})
}

func toRefundModel(rr *entities.RefundRequest) *models.RefundRequest {
	return &models.RefundRequest{
		ID:               rr.ID,
		TaskID:           rr.TaskID,
		PosterID:         rr.PosterID,
		Reason:           rr.Reason,
		Amount:           rr.Amount,
		Status:           string(rr.Status),
		ReviewerID:       rr.ReviewerID,
		ReviewerComment:  rr.ReviewerComment,
		ProviderRefundID: rr.ProviderRefundID.Ptr(),
		CreatedAt:        rr.CreatedAt,
		ReviewedAt:       rr.ReviewedAt,
	}
}

// DisputeRepository implements task dispute operations
type DisputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *entities.TaskDispute) error {
	m := toDisputeModel(d)
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	d.ID = m.ID
	d.CreatedAt = m.CreatedAt
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id int64) (*entities.TaskDispute, error) {
	var m models.TaskDispute
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toDisputeEntity(&m), nil
}

func (r *DisputeRepository) Update(ctx context.Context, d *entities.TaskDispute) error {
	return updateAll(ctx, r.db, &models.TaskDispute{ID: d.ID}, toDisputeModel(d))
}

func (r *DisputeRepository) HasPending(ctx context.Context, taskID int64) (bool, error) {
	return exists(ctx, r.db, &models.TaskDispute{}, "task_id = ? AND status = ?", taskID, entities.DisputeStatusPending)
}

// ListStalePending returns pending disputes opened before createdBefore
func (r *DisputeRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*entities.TaskDispute, error) {
	var ms []models.TaskDispute
	if err := conn(ctx, r.db).
		Where("status = ? AND created_at < ?", entities.DisputeStatusPending, createdBefore).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.TaskDispute, 0, len(ms))
	for i := range ms {
		out = append(out, toDisputeEntity(&ms[i]))
	}
	return out, nil
}

func toDisputeModel(d *entities.TaskDispute) *models.TaskDispute {
	return &models.TaskDispute{
		ID:         d.ID,
		TaskID:     d.TaskID,
		PosterID:   d.PosterID,
		Reason:     d.Reason,
		Status:     string(d.Status),
		ResolvedBy: d.ResolvedBy,
		Resolution: d.Resolution,
		ResolvedAt: d.ResolvedAt,
		CreatedAt:  d.CreatedAt,
	}
}

func toDisputeEntity(m *models.TaskDispute) *entities.TaskDispute {
	return &entities.TaskDispute{
		ID:         m.ID,
		TaskID:     m.TaskID,
		PosterID:   m.PosterID,
		Reason:     m.Reason,
		Status:     entities.DisputeStatus(m.Status),
		ResolvedBy: m.ResolvedBy,
		Resolution: m.Resolution,
		ResolvedAt: m.ResolvedAt,
		CreatedAt:  m.CreatedAt,
	}
}

// CancelRequestRepository implements cancel review operations
type CancelRequestRepository struct {
	db *gorm.DB
}

func NewCancelRequestRepository(db *gorm.DB) *CancelRequestRepository {
	return &CancelRequestRepository{db: db}
}

func (r *CancelRequestRepository) Create(ctx context.Context, cr *entities.TaskCancelRequest) error {
	m := toCancelRequestModel(cr)
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	cr.ID = m.ID
	cr.CreatedAt = m.CreatedAt
	return nil
}

func (r *CancelRequestRepository) GetByID(ctx context.Context, id int64) (*entities.TaskCancelRequest, error) {
	var m models.TaskCancelRequest
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	cr := &entities.TaskCancelRequest{
		ID:              m.ID,
		TaskID:          m.TaskID,
		RequesterID:     m.RequesterID,
		Reason:          m.Reason,
		Status:          entities.CancelRequestStatus(m.Status),
		AdminID:         m.AdminID,
		ServiceID:       m.ServiceID,
		ReviewerComment: m.ReviewerComment,
		CreatedAt:       m.CreatedAt,
		ReviewedAt:      m.ReviewedAt,
	}
	if m.ReviewerType != nil {
		rt := entities.ReviewerType(*m.ReviewerType)
		cr.ReviewerType = &rt
	}
	return cr, nil
}

func (r *CancelRequestRepository) Update(ctx context.Context, cr *entities.TaskCancelRequest) error {
	return updateAll(ctx, r.db, &models.TaskCancelRequest{ID: cr.ID}, toCancelRequestModel(cr))
}

func (r *CancelRequestRepository) HasPending(ctx context.Context, taskID int64) (bool, error) {
	return exists(ctx, r.db, &models.TaskCancelRequest{}, "task_id = ? AND status = ?", taskID, entities.CancelRequestPending)
}

func toCancelRequestModel(cr *entities.TaskCancelRequest) *models.TaskCancelRequest {
	m := &models.TaskCancelRequest{
		ID:              cr.ID,
		TaskID:          cr.TaskID,
		RequesterID:     cr.RequesterID,
		Reason:          cr.Reason,
		Status:          string(cr.Status),
		AdminID:         cr.AdminID,
		ServiceID:       cr.ServiceID,
		ReviewerComment: cr.ReviewerComment,
		CreatedAt:       cr.CreatedAt,
		ReviewedAt:      cr.ReviewedAt,
	}
	if cr.ReviewerType != nil {
		m.ReviewerType = stringPtr(string(*cr.ReviewerType))
	}
	return m
}

// updateAll writes every column of value except id and created_at onto the
// row model addresses.
func updateAll(ctx context.Context, db *gorm.DB, model, value interface{}) error {
	result := conn(ctx, db).Model(model).Select("*").Omit("id", "created_at").Updates(value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func exists(ctx context.Context, db *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	err := conn(ctx, db).Model(model).Where(query, args...).Limit(1).Count(&count).Error
	return count > 0, err
}
