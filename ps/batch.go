package ps

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nickyhof/QueryGate/core"
)

var (
	ErrBatchDone  = errors.New("batch already committed or discarded")
	ErrEmptyBatch = errors.New("batch has no changes")
)

// Batch collects writes and removals that land in a single commit. A later
// change to a path replaces an earlier one.
type Batch struct {
	p       *Persistence
	order   []string
	changes map[string][]byte // nil removes the path
	done    bool
}

func (p *Persistence) NewBatch() (*Batch, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	return &Batch{p: p, changes: make(map[string][]byte)}, nil
}

func (b *Batch) set(path string, data []byte) error {
	if b.done {
		return ErrBatchDone
	}
	if _, seen := b.changes[path]; !seen {
		b.order = append(b.order, path)
	}
	b.changes[path] = data
	return nil
}

// Put stores data at path.
func (b *Batch) Put(path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return b.set(path, data)
}

// Remove deletes path. Removing a missing path is not an error.
func (b *Batch) Remove(path string) error {
	return b.set(path, nil)
}

func (b *Batch) PutRecord(rec core.Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encoding record %d: %w", rec.ID, err)
	}
	return b.Put(RecordPath(rec.ID), data)
}

func (b *Batch) RemoveRecord(id int64) error {
	return b.Remove(RecordPath(id))
}

// PutDatabase rewrites the database description.
func (b *Batch) PutDatabase(database core.Database) error {
	data, err := msgpack.Marshal(database)
	if err != nil {
		return fmt.Errorf("encoding database: %w", err)
	}
	return b.Put(MetaPath, data)
}

// Len is the number of paths the batch changes.
func (b *Batch) Len() int {
	return len(b.changes)
}

// Discard drops the batch without touching the repository.
func (b *Batch) Discard() {
	b.done = true
	b.order = nil
	b.changes = nil
}

// Commit writes the blobs, rebuilds the affected trees once and records the
// result as one commit.
func (b *Batch) Commit(identity core.Identity, message string) (Transaction, error) {
	if b.done {
		return Transaction{}, ErrBatchDone
	}
	if len(b.changes) == 0 {
		return Transaction{}, ErrEmptyBatch
	}

	p := b.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	changes := make(edits, len(b.changes))
	for _, path := range b.order {
		data := b.changes[path]
		if data == nil {
			changes[path] = nil
			continue
		}
		hash, err := p.storeBlob(data)
		if err != nil {
			return Transaction{}, fmt.Errorf("%s: %w", path, err)
		}
		changes[path] = &hash
	}

	root := plumbing.ZeroHash
	head, err := p.headCommit()
	if err != nil {
		return Transaction{}, err
	}
	if head != nil {
		root = head.TreeHash
	}
	tree, err := p.editTree(root, changes)
	if err != nil {
		return Transaction{}, err
	}

	if message == "" {
		message = fmt.Sprintf("Batch: %d change(s)", len(changes))
	}
	txn, err := p.commit(tree, identity, message)
	if err != nil {
		return Transaction{}, err
	}
	b.Discard()
	return txn, nil
}
