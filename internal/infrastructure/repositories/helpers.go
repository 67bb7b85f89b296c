package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domainerrors "link2ur.backend/internal/domain/errors"
)

const pgUniqueViolation = "23505"

// isDuplicate reports a unique constraint violation from any dialect.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainerrors.ErrNotFound
	}
	return err
}

// insertOnce creates value inside its own savepoint so a unique violation
// does not abort an enclosing transaction.
func insertOnce(ctx context.Context, db *gorm.DB, value interface{}) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(value).Error
	})
	if isDuplicate(err) {
		return domainerrors.ErrAlreadyExists
	}
	return err
}

func encodeJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return datatypes.JSON(b), nil
}

func decodeJSON(raw datatypes.JSON, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
