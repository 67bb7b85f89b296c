package repositories

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainRepos "link2ur.backend/internal/domain/repositories"
)

type contextKey string

const (
	txKey   contextKey = "tx_db"
	lockKey contextKey = "tx_lock"
)

type lockMode int

const (
	lockNone lockMode = iota
	lockForUpdate
	lockSkipLocked
)

var (
	beginTx  = func(db *gorm.DB) *gorm.DB { return db.Begin() }
	commitTx = func(tx *gorm.DB) error { return tx.Commit().Error }
)

// txState is the transaction carried by ctx together with the hooks that
// wait for it to commit.
type txState struct {
	db    *gorm.DB
	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

func (s *txState) addHook(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

func (s *txState) takeHooks() []func(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hooks := s.hooks
	s.hooks = nil
	return hooks
}

// UnitOfWorkImpl implements UnitOfWork using GORM
type UnitOfWorkImpl struct {
	db *gorm.DB
}

// NewUnitOfWork creates a new UnitOfWork
func NewUnitOfWork(db *gorm.DB) domainRepos.UnitOfWork {
	return &UnitOfWorkImpl{db: db}
}

// Do executes fn within a transaction. When ctx already carries one, fn
// runs inside a savepoint so its failure only undoes its own writes.
func (u *UnitOfWorkImpl) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if parent, ok := ctx.Value(txKey).(*txState); ok {
		return u.doNested(ctx, parent, fn)
	}

	tx := beginTx(u.db.WithContext(ctx))
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	state := &txState{db: tx}
	txCtx := context.WithValue(ctx, txKey, state)

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return err
	}

	if err := commitTx(tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, hook := range state.takeHooks() {
		hook(withoutTx(ctx))
	}
	return nil
}

func (u *UnitOfWorkImpl) doNested(ctx context.Context, parent *txState, fn func(ctx context.Context) error) error {
	child := &txState{}
	err := parent.db.Transaction(func(tx *gorm.DB) error {
		child.db = tx
		return fn(context.WithValue(ctx, txKey, child))
	})
	if err != nil {
		return err
	}
	for _, hook := range child.takeHooks() {
		parent.addHook(hook)
	}
	return nil
}

// WithLock marks ctx so repository reads lock the rows they return.
func (u *UnitOfWorkImpl) WithLock(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockKey, lockForUpdate)
}

// WithSkipLocked marks ctx so batch reads skip rows locked by other workers.
func (u *UnitOfWorkImpl) WithSkipLocked(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockKey, lockSkipLocked)
}

// AfterCommit defers fn until the outermost transaction commits.
func (u *UnitOfWorkImpl) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		state.addHook(fn)
		return
	}
	fn(ctx)
}

// GetDB returns the transaction bound to ctx, or the base DB.
func (u *UnitOfWorkImpl) GetDB(ctx context.Context) *gorm.DB {
	return GetDB(ctx, u.db)
}

// GetDB extracts the transaction DB from context if present, otherwise
// returns fallback. Repositories in this package share it.
func GetDB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state.db
	}
	return fallback
}

// conn is GetDB bound to ctx.
func conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	return GetDB(ctx, fallback).WithContext(ctx)
}

// applyLock adds the row lock requested on ctx. Dialects without row
// locks (sqlite) drop the clause.
func applyLock(ctx context.Context, db *gorm.DB) *gorm.DB {
	mode, _ := ctx.Value(lockKey).(lockMode)
	switch mode {
	case lockForUpdate:
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	case lockSkipLocked:
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return db
}

// withoutTx detaches ctx from the committed transaction and its lock mode
// so hooks open their own sessions.
func withoutTx(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, txKey, nil)
	return context.WithValue(ctx, lockKey, lockNone)
}
