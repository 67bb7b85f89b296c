package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/internal/testutil"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewDB(t)
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func seedUser(t *testing.T, db *gorm.DB, id string) *entities.User {
	t.Helper()
	u := &entities.User{ID: id, Name: "user-" + id, UserLevel: entities.UserTierNormal}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func seedTask(t *testing.T, db *gorm.DB, posterID string, mutate func(*entities.Task)) *entities.Task {
	t.Helper()
	deadline := time.Now().UTC().Add(48 * time.Hour)
	task := &entities.Task{
		Title:       "Move boxes",
		Description: "Two flights of stairs",
		TaskType:    "Housekeeping",
		Location:    "London",
		BaseReward:  decimal.RequireFromString("30.00"),
		Currency:    entities.DefaultCurrency,
		Deadline:    &deadline,
		Status:      entities.TaskStatusOpen,
		TaskLevel:   entities.UserTierNormal,
		PosterID:    posterID,
		IsPublic:    true,
	}
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, NewTaskRepository(db).Create(context.Background(), task))
	return task
}
