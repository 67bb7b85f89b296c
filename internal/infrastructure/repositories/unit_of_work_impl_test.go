package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"link2ur.backend/internal/infrastructure/models"
)

func countSettings(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.SystemSetting{}).Count(&count).Error)
	return count
}

func TestUnitOfWork_DoCommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}
	settings := NewSettingsRepository(db)

	// commit path
	err := u.Do(context.Background(), func(ctx context.Context) error {
		return settings.Set(ctx, "a", "1")
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), countSettings(t, db))

	// rollback path
	err = u.Do(context.Background(), func(ctx context.Context) error {
		if err := settings.Set(ctx, "b", "2"); err != nil {
			return err
		}
		return errors.New("force rollback")
	})
	require.Error(t, err)
	require.Equal(t, int64(1), countSettings(t, db), "second insert must be rolled back")
}

func TestUnitOfWork_NestedRollbackKeepsOuter(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}
	settings := NewSettingsRepository(db)

	var hooks []string
	err := u.Do(context.Background(), func(ctx context.Context) error {
		require.NoError(t, settings.Set(ctx, "outer", "1"))
		u.AfterCommit(ctx, func(context.Context) { hooks = append(hooks, "outer") })

		nestedErr := u.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, settings.Set(ctx, "inner-failed", "1"))
			u.AfterCommit(ctx, func(context.Context) { hooks = append(hooks, "inner-failed") })
			return errors.New("skip this task")
		})
		require.Error(t, nestedErr)

		return u.Do(ctx, func(ctx context.Context) error {
			u.AfterCommit(ctx, func(context.Context) { hooks = append(hooks, "inner-ok") })
			return settings.Set(ctx, "inner-ok", "1")
		})
	})
	require.NoError(t, err)

	var keys []string
	require.NoError(t, db.Model(&models.SystemSetting{}).Order("key").Pluck("key", &keys).Error)
	require.Equal(t, []string{"inner-ok", "outer"}, keys)
	require.Equal(t, []string{"outer", "inner-ok"}, hooks)
}

func TestUnitOfWork_AfterCommitRunsOnlyAfterCommit(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}

	ran := false
	err := u.Do(context.Background(), func(ctx context.Context) error {
		u.AfterCommit(ctx, func(hookCtx context.Context) {
			ran = true
			require.Nil(t, hookCtx.Value(txKey), "hooks must not see the committed tx")
		})
		require.False(t, ran)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	ran = false
	err = u.Do(context.Background(), func(ctx context.Context) error {
		u.AfterCommit(ctx, func(context.Context) { ran = true })
		return errors.New("rollback")
	})
	require.Error(t, err)
	require.False(t, ran, "hooks are discarded on rollback")

	u.AfterCommit(context.Background(), func(context.Context) { ran = true })
	require.True(t, ran, "outside a transaction hooks run immediately")
}

func TestUnitOfWork_WithLockAndGetDB(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}

	ctx := u.WithLock(context.Background())
	require.Equal(t, lockForUpdate, ctx.Value(lockKey))
	require.Equal(t, lockSkipLocked, u.WithSkipLocked(context.Background()).Value(lockKey))

	plainDB := u.GetDB(context.Background())
	require.Equal(t, db, plainDB)

	err := u.Do(context.Background(), func(txCtx context.Context) error {
		require.NotEqual(t, db, u.GetDB(txCtx))
		return nil
	})
	require.NoError(t, err)
}

func TestUnitOfWork_DoBeginFailure(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}

	origBegin := beginTx
	t.Cleanup(func() { beginTx = origBegin })
	beginTx = func(db *gorm.DB) *gorm.DB {
		tx := db.Session(&gorm.Session{})
		_ = tx.AddError(errors.New("forced begin fail"))
		return tx
	}

	err := u.Do(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to begin transaction")
}

func TestUnitOfWork_DoCommitFailure_WithHook(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}

	origCommit := commitTx
	t.Cleanup(func() { commitTx = origCommit })
	commitTx = func(tx *gorm.DB) error {
		tx.Rollback()
		return errors.New("forced commit fail")
	}

	ran := false
	err := u.Do(context.Background(), func(ctx context.Context) error {
		u.AfterCommit(ctx, func(context.Context) { ran = true })
		return NewSettingsRepository(db).Set(ctx, "a", "1")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to commit transaction")
	require.False(t, ran)
}
