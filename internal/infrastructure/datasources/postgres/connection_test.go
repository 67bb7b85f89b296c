package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/config"
)

func TestNewConnection_PingFailure(t *testing.T) {
	cfg := config.DatabaseConfig{
		URL:          "postgres://x:x@127.0.0.1:1/x?sslmode=disable",
		PoolSize:     1,
		QueryTimeout: time.Second,
	}

	db, err := NewConnection(cfg)
	require.Error(t, err)
	require.Nil(t, db)
	require.Contains(t, err.Error(), "failed to ping database")
}

func TestNewConnection_OpenAndPingHooks(t *testing.T) {
	origOpen := sqlOpen
	origPing := dbPing
	t.Cleanup(func() {
		sqlOpen = origOpen
		dbPing = origPing
	})

	cfg := config.DatabaseConfig{URL: "postgres://u:p@localhost:5432/d?sslmode=disable", PoolSize: 2, MaxOverflow: 3}

	sqlOpen = func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("open failed")
	}
	db, err := NewConnection(cfg)
	require.Error(t, err)
	require.Nil(t, db)
	require.Contains(t, err.Error(), "failed to open database")

	realDB, openErr := origOpen("postgres", "host=127.0.0.1 port=1 user=x password=x dbname=x sslmode=disable")
	require.NoError(t, openErr)
	t.Cleanup(func() { _ = realDB.Close() })
	var gotDSN string
	sqlOpen = func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return realDB, nil
	}
	dbPing = func(*sql.DB) error { return nil }

	db, err = NewConnection(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Equal(t, cfg.URL, gotDSN, "no timeout configured")
	assert.Equal(t, 5, realDB.Stats().MaxOpenConnections)
}

func TestWithStatementTimeout(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@h:5432/d?sslmode=disable&statement_timeout=30000",
		withStatementTimeout("postgres://u:p@h:5432/d?sslmode=disable", 30*time.Second))
	assert.Equal(t,
		"host=h dbname=d statement_timeout=1500",
		withStatementTimeout("host=h dbname=d", 1500*time.Millisecond))
	assert.Equal(t,
		"postgres://h/d?statement_timeout=5",
		withStatementTimeout("postgres://h/d?statement_timeout=5", time.Minute))
	assert.Equal(t, "postgres://h/d", withStatementTimeout("postgres://h/d", 0))
}
