package migrations

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type migratorStub struct {
	upErr    error
	steps    []int
	downs    int
	version  uint
	closed   bool
	verErr   error
	lastCall string
}

func (m *migratorStub) Up() error { m.lastCall = "up"; return m.upErr }
func (m *migratorStub) Down() error {
	m.downs++
	m.lastCall = "down"
	return nil
}
func (m *migratorStub) Steps(n int) error {
	m.steps = append(m.steps, n)
	m.lastCall = "steps"
	return nil
}
func (m *migratorStub) Version() (uint, bool, error) { return m.version, false, m.verErr }
func (m *migratorStub) Close() (error, error) {
	m.closed = true
	return nil, nil
}

func stubMigrator(t *testing.T, stub *migratorStub, createErr error) {
	t.Helper()
	orig := newMigrator
	t.Cleanup(func() { newMigrator = orig })
	newMigrator = func(source.Driver, string) (migrator, error) {
		if createErr != nil {
			return nil, createErr
		}
		return stub, nil
	}
}

func TestSource_VersionsAreContiguous(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var seen []uint
	for {
		seen = append(seen, v)
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		_ = up.Close()
		assert.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := src.ReadDown(v)
		require.NoError(t, err, "version %d has no down migration", v)
		_ = down.Close()

		v, err = src.Next(v)
		if err != nil {
			break
		}
	}
	assert.Equal(t, []uint{1, 2, 3}, seen)
}

func TestSchemaCarriesAutoConfirmIndex(t *testing.T) {
	raw, err := Files.ReadFile("sql/000001_init_schema.up.sql")
	require.NoError(t, err)
	sql := string(raw)
	assert.Contains(t, sql, "idx_payment_transfers_auto_confirm")
	assert.Contains(t, sql, "WHERE transfer_source = 'auto_confirm_3days' AND status IN ('pending','retrying','succeeded')")
	assert.Contains(t, sql, "idx_notifications_user_type_related")
}

func TestUp(t *testing.T) {
	stub := &migratorStub{version: 3}
	stubMigrator(t, stub, nil)
	require.NoError(t, Up(context.Background(), "postgres://x"))
	assert.Equal(t, "up", stub.lastCall)
	assert.True(t, stub.closed)

	stub = &migratorStub{upErr: migrate.ErrNoChange}
	stubMigrator(t, stub, nil)
	require.NoError(t, Up(context.Background(), "postgres://x"), "no change is success")

	stub = &migratorStub{upErr: errors.New("syntax error")}
	stubMigrator(t, stub, nil)
	err := Up(context.Background(), "postgres://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run migrations up")

	stub = &migratorStub{verErr: migrate.ErrNilVersion}
	stubMigrator(t, stub, nil)
	require.NoError(t, Up(context.Background(), "postgres://x"))

	stubMigrator(t, nil, errors.New("dial"))
	err = Up(context.Background(), "postgres://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create migrate instance")
}

func TestDown(t *testing.T) {
	stub := &migratorStub{}
	stubMigrator(t, stub, nil)
	require.NoError(t, Down(context.Background(), "postgres://x", 2))
	assert.Equal(t, []int{-2}, stub.steps)

	require.NoError(t, Down(context.Background(), "postgres://x", 0))
	assert.Equal(t, 1, stub.downs)
}
