package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/models"
)

// ApplicationRepository implements task application data operations
type ApplicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts an application; a second one from the same applicant
// returns ErrAlreadyExists.
func (r *ApplicationRepository) Create(ctx context.Context, app *entities.TaskApplication) error {
	m := toApplicationModel(app)
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	app.ID = m.ID
	app.CreatedAt = m.CreatedAt
	app.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*entities.TaskApplication, error) {
	var m models.TaskApplication
	if err := applyLock(ctx, conn(ctx, r.db)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toApplicationEntity(&m), nil
}

func (r *ApplicationRepository) GetByTaskAndApplicant(ctx context.Context, taskID int64, applicantID string) (*entities.TaskApplication, error) {
	var m models.TaskApplication
	if err := applyLock(ctx, conn(ctx, r.db)).
		Where("task_id = ? AND applicant_id = ?", taskID, applicantID).
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toApplicationEntity(&m), nil
}

// ListByTask returns applications oldest first
func (r *ApplicationRepository) ListByTask(ctx context.Context, taskID int64) ([]*entities.TaskApplication, error) {
	var ms []models.TaskApplication
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).Order("created_at ASC").Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	return toApplicationEntities(ms), nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app *entities.TaskApplication) error {
	m := toApplicationModel(app)
	m.UpdatedAt = utcNow()
	result := conn(ctx, r.db).Model(&models.TaskApplication{ID: app.ID}).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	app.UpdatedAt = m.UpdatedAt
	return nil
}

// RejectPending rejects every other pending application on the task
func (r *ApplicationRepository) RejectPending(ctx context.Context, taskID, exceptID int64) ([]*entities.TaskApplication, error) {
	db := conn(ctx, r.db)

	var ms []models.TaskApplication
	if err := applyLock(ctx, db).
		Where("task_id = ? AND status = ? AND id <> ?", taskID, entities.ApplicationStatusPending, exceptID).
		Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	now := utcNow()
	if err := db.Model(&models.TaskApplication{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     string(entities.ApplicationStatusRejected),
			"updated_at": now,
		}).Error; err != nil {
		return nil, err
	}

	out := toApplicationEntities(ms)
	for _, a := range out {
		a.Status = entities.ApplicationStatusRejected
		a.UpdatedAt = now
	}
	return out, nil
}

// CreateNegotiationLog appends a counter-offer response audit row
func (r *ApplicationRepository) CreateNegotiationLog(ctx context.Context, log *entities.NegotiationResponseLog) error {
	m := &models.NegotiationResponseLog{
		TaskID:          log.TaskID,
		ApplicationID:   log.ApplicationID,
		UserID:          log.UserID,
		Action:          string(log.Action),
		NegotiatedPrice: log.NegotiatedPrice,
		IPAddress:       log.IPAddress,
		UserAgent:       log.UserAgent,
		RespondedAt:     log.RespondedAt,
	}
	if m.RespondedAt.IsZero() {
		m.RespondedAt = utcNow()
	}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	log.ID = m.ID
	return nil
}

func toApplicationEntities(ms []models.TaskApplication) []*entities.TaskApplication {
	out := make([]*entities.TaskApplication, 0, len(ms))
	for i := range ms {
		out = append(out, toApplicationEntity(&ms[i]))
	}
	return out
}

func toApplicationModel(a *entities.TaskApplication) *models.TaskApplication {
	return &models.TaskApplication{
		ID:              a.ID,
		TaskID:          a.TaskID,
		ApplicantID:     a.ApplicantID,
		Message:         a.Message,
		NegotiatedPrice: a.NegotiatedPrice,
		Currency:        a.Currency,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toApplicationEntity(m *models.TaskApplication) *entities.TaskApplication {
	return &entities.TaskApplication{
		ID:              m.ID,
		TaskID:          m.TaskID,
		ApplicantID:     m.ApplicantID,
		Message:         m.Message,
		NegotiatedPrice: m.NegotiatedPrice,
		Currency:        m.Currency,
		Status:          entities.ApplicationStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ParticipantRepository implements multi-participant membership operations
type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Create(ctx context.Context, p *entities.TaskParticipant) error {
	m := &models.TaskParticipant{
		TaskID:    p.TaskID,
		UserID:    p.UserID,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *ParticipantRepository) GetByTaskAndUser(ctx context.Context, taskID int64, userID string) (*entities.TaskParticipant, error) {
	var m models.TaskParticipant
	if err := conn(ctx, r.db).Where("task_id = ? AND user_id = ?", taskID, userID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toParticipantEntity(&m), nil
}

func (r *ParticipantRepository) ListByTask(ctx context.Context, taskID int64) ([]*entities.TaskParticipant, error) {
	var ms []models.TaskParticipant
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.TaskParticipant, 0, len(ms))
	for i := range ms {
		out = append(out, toParticipantEntity(&ms[i]))
	}
	return out, nil
}

// CancelAll moves every participant that is not yet finished to cancelled
// and returns the rows it changed.
func (r *ParticipantRepository) CancelAll(ctx context.Context, taskID int64, now time.Time) ([]*entities.TaskParticipant, error) {
	db := conn(ctx, r.db)
	finished := []string{
		string(entities.ParticipantStatusCompleted),
		string(entities.ParticipantStatusCancelled),
		string(entities.ParticipantStatusExited),
	}

	var ms []models.TaskParticipant
	if err := db.Where("task_id = ? AND status NOT IN ?", taskID, finished).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}
	if err := db.Model(&models.TaskParticipant{}).
		Where("task_id = ? AND status NOT IN ?", taskID, finished).
		Updates(map[string]interface{}{
			"status":       string(entities.ParticipantStatusCancelled),
			"cancelled_at": now,
			"updated_at":   now,
		}).Error; err != nil {
		return nil, err
	}

	out := make([]*entities.TaskParticipant, 0, len(ms))
	for i := range ms {
		p := toParticipantEntity(&ms[i])
		p.Status = entities.ParticipantStatusCancelled
		p.CancelledAt = &now
		p.UpdatedAt = now
		out = append(out, p)
	}
	return out, nil
}

func toParticipantEntity(m *models.TaskParticipant) *entities.TaskParticipant {
	return &entities.TaskParticipant{
		ID:          m.ID,
		TaskID:      m.TaskID,
		UserID:      m.UserID,
		Status:      entities.ParticipantStatus(m.Status),
		CancelledAt: m.CancelledAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ReviewRepository implements review data operations
type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review; a second review by the same user on the task
// returns ErrAlreadyExists.
func (r *ReviewRepository) Create(ctx context.Context, review *entities.Review) error {
	m := &models.Review{
		TaskID:      review.TaskID,
		UserID:      review.UserID,
		RevieweeID:  review.RevieweeID,
		Rating:      review.Rating,
		Comment:     review.Comment,
		IsAnonymous: review.IsAnonymous,
		CreatedAt:   review.CreatedAt,
	}
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	review.ID = m.ID
	review.CreatedAt = m.CreatedAt
	return nil
}

func (r *ReviewRepository) ListByTask(ctx context.Context, taskID int64) ([]*entities.Review, error) {
	var ms []models.Review
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Review, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.Review{
			ID:          m.ID,
			TaskID:      m.TaskID,
			UserID:      m.UserID,
			RevieweeID:  m.RevieweeID,
			Rating:      m.Rating,
			Comment:     m.Comment,
			IsAnonymous: m.IsAnonymous,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}
