package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/lifecycle"
	domainRepos "link2ur.backend/internal/domain/repositories"
	"link2ur.backend/internal/infrastructure/models"
	"link2ur.backend/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// trigram similarity floor for keyword search on postgres
	keywordSimilarity = 0.2
)

// TaskRepository implements task data operations
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the task and fills its generated id
func (r *TaskRepository) Create(ctx context.Context, task *entities.Task) error {
	m := toTaskModel(task)
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	task.ID = m.ID
	task.CreatedAt = m.CreatedAt
	task.UpdatedAt = m.UpdatedAt
	return nil
}

// GetByID gets a task by ID, locking the row when ctx asks for it
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*entities.Task, error) {
	var m models.Task
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toTaskEntity(&m), nil
}

// GetByPaymentIntentID finds the task an intent was issued for
func (r *TaskRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*entities.Task, error) {
	var m models.Task
	if err := applyLock(ctx, conn(ctx, r.db)).Where("payment_intent_id = ?", intentID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toTaskEntity(&m), nil
}

// Update writes every mutable column of the task
func (r *TaskRepository) Update(ctx context.Context, task *entities.Task) error {
	m := toTaskModel(task)
	m.UpdatedAt = utcNow()
	result := conn(ctx, r.db).Model(&models.Task{ID: task.ID}).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	task.UpdatedAt = m.UpdatedAt
	return nil
}

// AssignTakerIfOpen claims an open task for takerID with a conditional update
func (r *TaskRepository) AssignTakerIfOpen(ctx context.Context, taskID int64, takerID string, now time.Time) (bool, error) {
	result := conn(ctx, r.db).Model(&models.Task{}).
		Where("id = ? AND status = ? AND taker_id IS NULL", taskID, entities.TaskStatusOpen).
		Updates(map[string]interface{}{
			"taker_id":   takerID,
			"status":     string(entities.TaskStatusTaken),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List returns one page of the public feed and the total match count
func (r *TaskRepository) List(ctx context.Context, f domainRepos.TaskListFilter) ([]*entities.Task, int64, error) {
	size := f.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	paging := utils.GetPaginationParams(f.Page, size)

	db := conn(ctx, r.db)
	q := db.Model(&models.Task{}).
		Where("status = ?", entities.TaskStatusOpen).
		Where("(deadline IS NULL OR deadline > ?)", f.Now)

	if f.TaskType != "" && !strings.EqualFold(f.TaskType, "all") {
		q = q.Where("task_type = ?", f.TaskType)
	}
	q = whereLocation(q, f.Location, f.Cities)
	q = whereKeyword(q, f.Keyword)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.Task
	if err := orderTasks(q, f.SortBy, f.Now).
		Limit(paging.Limit).Offset(paging.CalculateOffset()).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return toTaskEntities(ms), total, nil
}

func whereLocation(q *gorm.DB, filter string, cities []string) *gorm.DB {
	switch lifecycle.ClassifyLocationFilter(filter) {
	case lifecycle.LocationIsOnline:
		return q.Where("LOWER(location) LIKE ?", "%online%")
	case lifecycle.LocationIsOther:
		q = q.Where("LOWER(location) NOT LIKE ?", "%online%")
		for _, c := range cities {
			q = q.Where("LOWER(location) NOT LIKE ?", "%"+strings.ToLower(c)+"%")
		}
		return q
	case lifecycle.LocationCity:
		return q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(filter))+"%")
	}
	return q
}

func whereKeyword(q *gorm.DB, keyword string) *gorm.DB {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return q
	}
	like := "%" + strings.ToLower(keyword) + "%"
	substring := "LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(task_type) LIKE ? OR LOWER(location) LIKE ?"
	if q.Dialector.Name() == "postgres" {
		return q.Where(
			"(similarity(title, ?) > ? OR similarity(description, ?) > ? OR "+substring+")",
			keyword, keywordSimilarity, keyword, keywordSimilarity, like, like, like, like,
		)
	}
	return q.Where("("+substring+")", like, like, like, like)
}

func orderTasks(q *gorm.DB, sortBy string, now time.Time) *gorm.DB {
	switch sortBy {
	case domainRepos.SortRewardAsc:
		return q.Order("base_reward ASC").Order("created_at DESC")
	case domainRepos.SortRewardDesc:
		return q.Order("base_reward DESC").Order("created_at DESC")
	case domainRepos.SortDeadlineAsc:
		return q.Order("deadline IS NULL").Order("deadline ASC").Order("created_at DESC")
	case domainRepos.SortDeadlineDesc:
		return q.Order("deadline IS NULL").Order("deadline DESC").Order("created_at DESC")
	}
	// latest: tasks from the last 24h first, then newest
	return q.Order(clause.OrderBy{Expression: clause.Expr{
		SQL:                "CASE WHEN created_at >= ? THEN 0 ELSE 1 END, created_at DESC, id DESC",
		Vars:               []interface{}{now.Add(-24 * time.Hour)},
		WithoutParentheses: true,
	}})
}

// ListOpenPastDeadline selects open fixed-deadline tasks whose deadline passed
func (r *TaskRepository) ListOpenPastDeadline(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "id ASC",
		"status = ? AND is_flexible = ? AND deadline IS NOT NULL AND deadline <= ?",
		entities.TaskStatusOpen, false, now)
}

// ListExpiredPayments selects unpaid pending_payment tasks past their payment window
func (r *TaskRepository) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "id ASC",
		"status = ? AND is_paid = ? AND payment_expires_at IS NOT NULL AND payment_expires_at < ?",
		entities.TaskStatusPendingPayment, false, now)
}

// ListPaymentExpiringBetween selects unpaid tasks whose payment window closes in (from, to]
func (r *TaskRepository) ListPaymentExpiringBetween(ctx context.Context, from, to time.Time) ([]*entities.Task, error) {
	return r.find(ctx, 0, "payment_expires_at ASC",
		"status = ? AND is_paid = ? AND payment_expires_at > ? AND payment_expires_at <= ?",
		entities.TaskStatusPendingPayment, false, from, to)
}

// ListInProgressDeadlineBetween selects in-progress tasks whose deadline falls in (from, to]
func (r *TaskRepository) ListInProgressDeadlineBetween(ctx context.Context, from, to time.Time) ([]*entities.Task, error) {
	return r.find(ctx, 0, "deadline ASC",
		"status = ? AND deadline > ? AND deadline <= ?",
		entities.TaskStatusInProgress, from, to)
}

// ListAwaitingConfirmation selects unconfirmed tasks whose confirmation
// deadline falls in (from, to]
func (r *TaskRepository) ListAwaitingConfirmation(ctx context.Context, expert bool, from, to time.Time) ([]*entities.Task, error) {
	if expert {
		return r.find(ctx, 0, "confirmation_deadline ASC",
			"expert_service_id IS NOT NULL AND status IN ? AND is_confirmed = ? AND auto_confirmed = ? AND confirmation_deadline > ? AND confirmation_deadline <= ?",
			[]string{string(entities.TaskStatusPendingConfirmation), string(entities.TaskStatusCompleted)}, false, false, from, to)
	}
	return r.find(ctx, 0, "confirmation_deadline ASC",
		"expert_service_id IS NULL AND status = ? AND confirmation_deadline > ? AND confirmation_deadline <= ?",
		entities.TaskStatusPendingConfirmation, from, to)
}

const noActiveRefundOrDispute = `NOT EXISTS (SELECT 1 FROM refund_requests rr WHERE rr.task_id = tasks.id AND rr.status IN ('pending','processing'))
	AND NOT EXISTS (SELECT 1 FROM task_disputes td WHERE td.task_id = tasks.id AND td.status = 'pending')`

// ListAutoConfirmCandidates selects non-expert tasks eligible for auto-confirm
func (r *TaskRepository) ListAutoConfirmCandidates(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "confirmation_deadline ASC",
		"expert_service_id IS NULL AND status = ? AND confirmation_deadline IS NOT NULL AND confirmation_deadline < ? AND stripe_dispute_frozen = ? AND escrow_amount > 0 AND "+noActiveRefundOrDispute,
		entities.TaskStatusPendingConfirmation, now, false)
}

// ListAutoTransferCandidates selects paid expert tasks past their
// confirmation deadline that were neither confirmed nor auto-confirmed
func (r *TaskRepository) ListAutoTransferCandidates(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "confirmation_deadline ASC",
		"expert_service_id IS NOT NULL AND status IN ? AND is_paid = ? AND is_confirmed = ? AND auto_confirmed = ? AND confirmation_deadline IS NOT NULL AND confirmation_deadline < ? AND stripe_dispute_frozen = ? AND "+noActiveRefundOrDispute,
		[]string{string(entities.TaskStatusPendingConfirmation), string(entities.TaskStatusCompleted)}, true, false, false, now, false)
}

const hasStoredFiles = `((images IS NOT NULL AND images <> '[]' AND images <> 'null')
	OR EXISTS (SELECT 1 FROM message_attachments ma JOIN messages m ON m.id = ma.message_id WHERE m.task_id = tasks.id AND ma.blob_id IS NOT NULL))`

// ListCompletedWithFiles selects completed tasks that still hold files
func (r *TaskRepository) ListCompletedWithFiles(ctx context.Context, completedBefore time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "id ASC",
		"status = ? AND completed_at IS NOT NULL AND completed_at < ? AND "+hasStoredFiles,
		entities.TaskStatusCompleted, completedBefore)
}

// ListExpiredWithFiles selects cancelled tasks, or open tasks past their
// deadline, that still hold files
func (r *TaskRepository) ListExpiredWithFiles(ctx context.Context, before time.Time, limit int) ([]*entities.Task, error) {
	return r.find(ctx, limit, "id ASC",
		"((status = ? AND updated_at < ?) OR (status = ? AND deadline IS NOT NULL AND deadline < ?)) AND "+hasStoredFiles,
		entities.TaskStatusCancelled, before, entities.TaskStatusOpen, before)
}

// ClearImages empties the image list so cleanup does not revisit the task
func (r *TaskRepository) ClearImages(ctx context.Context, taskID int64) error {
	return conn(ctx, r.db).Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"images":     datatypes.NewJSONSlice([]string{}),
			"updated_at": utcNow(),
		}).Error
}

// ListActiveForUser pages the tasks userID takes part in
func (r *TaskRepository) ListActiveForUser(ctx context.Context, userID string, limit, offset int) ([]*entities.Task, error) {
	var ms []models.Task
	err := conn(ctx, r.db).
		Where(`poster_id = ? OR taker_id = ? OR expert_creator_id = ? OR EXISTS (
			SELECT 1 FROM task_participants tp WHERE tp.task_id = tasks.id AND tp.user_id = ? AND tp.status IN ?)`,
			userID, userID, userID, userID,
			[]string{string(entities.ParticipantStatusAccepted), string(entities.ParticipantStatusInProgress)}).
		Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toTaskEntities(ms), nil
}

// AddHistory appends an audit row
func (r *TaskRepository) AddHistory(ctx context.Context, h *entities.TaskHistory) error {
	m := &models.TaskHistory{
		TaskID:    h.TaskID,
		UserID:    h.UserID,
		Action:    h.Action,
		Remark:    h.Remark,
		Timestamp: h.Timestamp,
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = utcNow()
	}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	h.ID = m.ID
	h.Timestamp = m.Timestamp
	return nil
}

// ListHistory returns the audit trail oldest first
func (r *TaskRepository) ListHistory(ctx context.Context, taskID int64) ([]*entities.TaskHistory, error) {
	var ms []models.TaskHistory
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).
		Order("timestamp ASC").Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.TaskHistory, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.TaskHistory{
			ID:        m.ID,
			TaskID:    m.TaskID,
			UserID:    m.UserID,
			Action:    m.Action,
			Remark:    m.Remark,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// DeleteCascade removes the task and everything it owns. Call it inside a
// unit of work; the returned files are safe to delete after commit.
func (r *TaskRepository) DeleteCascade(ctx context.Context, taskID int64) (*domainRepos.CascadeResult, error) {
	db := conn(ctx, r.db)

	var task models.Task
	if err := applyLock(ctx, db).Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, notFound(err)
	}

	result := &domainRepos.CascadeResult{Images: append([]string(nil), task.Images...)}

	messageIDs := db.Model(&models.Message{}).Select("id").Where("task_id = ?", taskID)

	var attachments []models.MessageAttachment
	if err := db.Where("message_id IN (?)", messageIDs).Find(&attachments).Error; err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if a.BlobID != nil && *a.BlobID != "" {
			result.AttachmentBlobs = append(result.AttachmentBlobs, *a.BlobID)
		}
	}
	var imageIDs []string
	if err := db.Model(&models.Message{}).
		Where("task_id = ? AND image_id IS NOT NULL", taskID).
		Pluck("image_id", &imageIDs).Error; err != nil {
		return nil, err
	}
	result.AttachmentBlobs = append(result.AttachmentBlobs, imageIDs...)

	var applicationIDs []int64
	if err := db.Model(&models.TaskApplication{}).Where("task_id = ?", taskID).Pluck("id", &applicationIDs).Error; err != nil {
		return nil, err
	}

	steps := []struct {
		model interface{}
		query string
		args  []interface{}
	}{
		{&models.NegotiationResponseLog{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskApplication{}, "task_id = ?", []interface{}{taskID}},
		{&models.Notification{}, notificationsForTask(len(applicationIDs) > 0), notificationArgs(taskID, applicationIDs)},
		{&models.Review{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskHistory{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskCancelRequest{}, "task_id = ?", []interface{}{taskID}},
		{&models.RefundRequest{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskDispute{}, "task_id = ?", []interface{}{taskID}},
		{&models.PaymentTransfer{}, "task_id = ?", []interface{}{taskID}},
		{&models.ParticipantReward{}, "task_id = ?", []interface{}{taskID}},
		{&models.AuditLog{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskParticipant{}, "task_id = ?", []interface{}{taskID}},
		{&models.TaskTimeSlotRelation{}, "task_id = ?", []interface{}{taskID}},
		{&models.MessageAttachment{}, "message_id IN (?)", []interface{}{messageIDs}},
		{&models.MessageRead{}, "message_id IN (?)", []interface{}{messageIDs}},
		{&models.MessageReadCursor{}, "task_id = ?", []interface{}{taskID}},
		{&models.Message{}, "task_id = ?", []interface{}{taskID}},
		{&models.Task{}, "id = ?", []interface{}{taskID}},
	}
	for _, s := range steps {
		if err := db.Where(s.query, s.args...).Delete(s.model).Error; err != nil {
			return nil, err
		}
	}
	return result, nil
}

func notificationsForTask(withApplications bool) string {
	q := "(related_id = ? AND (related_type IS NULL OR related_type <> ?))"
	if withApplications {
		q += " OR (related_type = ? AND related_id IN ?)"
	}
	return q
}

func notificationArgs(taskID int64, applicationIDs []int64) []interface{} {
	args := []interface{}{taskID, string(entities.RelatedTypeApplication)}
	if len(applicationIDs) > 0 {
		args = append(args, string(entities.RelatedTypeApplication), applicationIDs)
	}
	return args
}

func (r *TaskRepository) find(ctx context.Context, limit int, order string, query string, args ...interface{}) ([]*entities.Task, error) {
	q := applyLock(ctx, conn(ctx, r.db)).Where(query, args...).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.Task
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return toTaskEntities(ms), nil
}

func toTaskEntities(ms []models.Task) []*entities.Task {
	out := make([]*entities.Task, 0, len(ms))
	for i := range ms {
		out = append(out, toTaskEntity(&ms[i]))
	}
	return out
}

func toTaskModel(t *entities.Task) *models.Task {
	images := t.Images
	if images == nil {
		images = []string{}
	}
	return &models.Task{
		ID:                       t.ID,
		Title:                    t.Title,
		Description:              t.Description,
		TaskType:                 t.TaskType,
		Location:                 t.Location,
		Latitude:                 t.Latitude,
		Longitude:                t.Longitude,
		BaseReward:               t.BaseReward,
		AgreedReward:             t.AgreedReward,
		Currency:                 t.Currency,
		IsFlexible:               t.IsFlexible,
		Deadline:                 t.Deadline,
		Status:                   string(t.Status),
		TaskLevel:                string(t.TaskLevel),
		PosterID:                 t.PosterID,
		TakerID:                  t.TakerID,
		IsPublic:                 t.IsPublic,
		IsMultiParticipant:       t.IsMultiParticipant,
		ExpertCreatorID:          t.ExpertCreatorID,
		CreatedByExpert:          t.CreatedByExpert,
		OriginatingUserID:        t.OriginatingUserID,
		ParentActivityID:         t.ParentActivityID,
		ExpertServiceID:          t.ExpertServiceID,
		IsPaid:                   t.IsPaid,
		EscrowAmount:             t.EscrowAmount,
		PaymentIntentID:          t.PaymentIntentID.Ptr(),
		PaymentExpiresAt:         t.PaymentExpiresAt,
		StripeDisputeFrozen:      t.StripeDisputeFrozen,
		ConfirmedAt:              t.ConfirmedAt,
		IsConfirmed:              t.IsConfirmed,
		AutoConfirmed:            t.AutoConfirmed,
		ConfirmationDeadline:     t.ConfirmationDeadline,
		ConfirmationReminderSent: t.ConfirmationReminderSent,
		PaidToUserID:             t.PaidToUserID,
		CompletedAt:              t.CompletedAt,
		Images:                   datatypes.NewJSONSlice(images),
		CreatedAt:                t.CreatedAt,
		UpdatedAt:                t.UpdatedAt,
	}
}

func toTaskEntity(m *models.Task) *entities.Task {
	images := []string(m.Images)
	if images == nil {
		images = []string{}
	}
	return &entities.Task{
		ID:                       m.ID,
		Title:                    m.Title,
		Description:              m.Description,
		TaskType:                 m.TaskType,
		Location:                 m.Location,
		Latitude:                 m.Latitude,
		Longitude:                m.Longitude,
		BaseReward:               m.BaseReward,
		AgreedReward:             m.AgreedReward,
		Currency:                 m.Currency,
		IsFlexible:               m.IsFlexible,
		Deadline:                 m.Deadline,
		Status:                   entities.TaskStatus(m.Status),
		TaskLevel:                entities.TaskLevel(m.TaskLevel),
		PosterID:                 m.PosterID,
		TakerID:                  m.TakerID,
		IsPublic:                 m.IsPublic,
		IsMultiParticipant:       m.IsMultiParticipant,
		ExpertCreatorID:          m.ExpertCreatorID,
		CreatedByExpert:          m.CreatedByExpert,
		OriginatingUserID:        m.OriginatingUserID,
		ParentActivityID:         m.ParentActivityID,
		ExpertServiceID:          m.ExpertServiceID,
		IsPaid:                   m.IsPaid,
		EscrowAmount:             m.EscrowAmount,
		PaymentIntentID:          null.StringFromPtr(m.PaymentIntentID),
		PaymentExpiresAt:         m.PaymentExpiresAt,
		StripeDisputeFrozen:      m.StripeDisputeFrozen,
		ConfirmedAt:              m.ConfirmedAt,
		IsConfirmed:              m.IsConfirmed,
		AutoConfirmed:            m.AutoConfirmed,
		ConfirmationDeadline:     m.ConfirmationDeadline,
		ConfirmationReminderSent: m.ConfirmationReminderSent,
		PaidToUserID:             m.PaidToUserID,
		CompletedAt:              m.CompletedAt,
		Images:                   images,
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
	}
}
