// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"link2ur.backend/internal/infrastructure/models"
)

// AutoConfirmTransferIndex mirrors the partial unique index the postgres
// migration creates on payment_transfers.
const AutoConfirmTransferIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_transfers_auto_confirm
	ON payment_transfers(task_id)
	WHERE transfer_source = 'auto_confirm_3days' AND status IN ('pending','retrying','succeeded')`

// NewDB opens a private in-memory sqlite database with every model migrated.
// It holds a single connection, so code under test must route every query
// of a transaction through the transaction's context.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	return open(t, dsn, 1)
}

// NewFileDB opens a file-backed sqlite database that allows several
// connections, for tests that race goroutines against the same rows.
// Transactions begin IMMEDIATE and wait on the busy timeout, so writers
// queue instead of failing.
func NewFileDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "race.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", path)
	return open(t, dsn, conns)
}

func open(t *testing.T, dsn string, conns int) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "automigrate")
	require.NoError(t, db.Exec(AutoConfirmTransferIndex).Error, "partial index")
	return db
}
