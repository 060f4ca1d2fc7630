package db

import (
	"context"
	"sync"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/op"
	"github.com/nickyhof/QueryGate/ps"
)

// Handle is an attached database. It holds the database lock until Detach.
type Handle struct {
	registry *Registry
	entry    *entry
	mode     core.LockMode
	flock    *fileLock
	dbop     *op.DatabaseOp
	once     sync.Once
}

func (h *Handle) Name() string {
	return h.entry.name
}

func (h *Handle) Mode() core.LockMode {
	return h.mode
}

func (h *Handle) Database() core.Database {
	return h.dbop.Database
}

// Record resolves a record reference.
func (h *Handle) Record(id int64) (core.Record, error) {
	return h.dbop.Record(id)
}

func (h *Handle) Traverse(ctx context.Context, q op.Query, strategy op.Strategy, identity core.Identity) (op.Outcome, error) {
	if strategy.Writes() && h.mode != core.WriteLock {
		return op.Outcome{}, ErrReadOnly
	}
	return h.dbop.Traverse(ctx, q, strategy, identity)
}

func (h *Handle) Insert(fields []op.Field, identity core.Identity) (int64, ps.Transaction, error) {
	if h.mode != core.WriteLock {
		return 0, ps.Transaction{}, ErrReadOnly
	}
	return h.dbop.Insert(fields, identity)
}

// Detach releases the database lock. Only the first call has an effect.
func (h *Handle) Detach() {
	h.once.Do(func() {
		h.registry.unlock(h.entry, h.mode, h.flock)
		h.registry.release(h.entry)
		h.registry.detached.Add(1)
	})
}
