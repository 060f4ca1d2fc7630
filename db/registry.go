package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/op"
	"github.com/nickyhof/QueryGate/ps"
)

const (
	DefaultDatabaseSize = 10000000
	MaxDatabaseSize     = 1000000000
	DefaultLockTimeout  = 2 * time.Second
)

// S3Config holds credentials for s3:// snapshot destinations. Empty fields
// fall back to the default AWS configuration chain.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

type Options struct {
	// BaseDir holds one repository per database. Empty keeps databases in
	// memory for the lifetime of the process.
	BaseDir     string
	MaxSize     int64
	LockTimeout time.Duration
	Identity    core.Identity
	S3          S3Config
	Logger      pslog.Logger
}

// Stats counts handles given out and returned.
type Stats struct {
	Attached int64
	Detached int64
}

type Registry struct {
	opts     Options
	logger   pslog.Logger
	mu       sync.Mutex
	entries  map[string]*entry
	attached atomic.Int64
	detached atomic.Int64
}

// entry is the lock state of one database. Entries live while a caller
// holds them or, in memory mode, while the database exists.
type entry struct {
	name string
	lock *rwLock
	refs int        // guarded by Registry.mu
	mu   sync.Mutex // guards dbop
	dbop *op.DatabaseOp
}

func NewRegistry(opts Options) *Registry {
	if opts.MaxSize <= 0 {
		opts.MaxSize = MaxDatabaseSize
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Identity.Name == "" {
		opts.Identity = core.Identity{Name: "QueryGate", Email: "gateway@querygate.local"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Registry{
		opts:    opts,
		logger:  logger.With("sys", "db.registry"),
		entries: make(map[string]*entry),
	}
}

// ValidName reports whether name can be used as a database name. Names are
// numeric, as they double as directory names.
func ValidName(name string) bool {
	if name == "" || len(name) > 20 {
		return false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *Registry) dir(name string) string {
	return filepath.Join(r.opts.BaseDir, name)
}

// acquire returns the entry of name with a reference taken, or nil when
// create is false and the database does not exist.
func (r *Registry) acquire(name string, create bool) *entry {
	if !create && r.opts.BaseDir != "" {
		if _, err := os.Stat(r.dir(name)); err == nil {
			create = true
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		if !create {
			return nil
		}
		e = &entry{name: name, lock: newRWLock()}
		r.entries[name] = e
	}
	e.refs++
	return e
}

// release drops a reference taken by acquire. The last reference to an
// entry without an open database removes it.
func (r *Registry) release(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	e.mu.Lock()
	loaded := e.dbop != nil
	e.mu.Unlock()
	if !loaded {
		delete(r.entries, e.name)
	}
}

// lock takes the in-process lock of e and, in file mode, the lock on its
// directory shared with other processes.
func (r *Registry) lock(ctx context.Context, e *entry, mode core.LockMode) (*fileLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.LockTimeout)
	defer cancel()
	if err := e.lock.acquire(ctx, mode); err != nil {
		return nil, err
	}
	if r.opts.BaseDir == "" {
		return nil, nil
	}
	fl, err := acquireFileLock(ctx, lockFilePath(r.opts.BaseDir, e.name), mode)
	if err != nil {
		e.lock.release(mode)
		return nil, err
	}
	return fl, nil
}

func (r *Registry) unlock(e *entry, mode core.LockMode, fl *fileLock) {
	fl.release()
	e.lock.release(mode)
}

// load returns the database of a locked entry. File databases are read
// from disk every time, as another process may have changed them since.
func (r *Registry) load(e *entry) (*op.DatabaseOp, error) {
	if r.opts.BaseDir != "" {
		return r.open(e.name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dbop == nil {
		return nil, ErrNotFound
	}
	return e.dbop, nil
}

func (r *Registry) open(name string) (*op.DatabaseOp, error) {
	persistence, err := ps.OpenFilePersistence(r.dir(name))
	if errors.Is(err, ps.ErrRepoNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	dbop, err := op.GetDatabase(persistence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return dbop, nil
}

// Attach locks the named database in the given mode and returns a handle to
// it. The handle must be detached exactly once.
func (r *Registry) Attach(ctx context.Context, name string, mode core.LockMode) (*Handle, error) {
	if !ValidName(name) {
		return nil, ErrBadName
	}
	if mode != core.WriteLock {
		mode = core.ReadLock
	}

	e := r.acquire(name, false)
	if e == nil {
		return nil, ErrNotFound
	}
	fl, err := r.lock(ctx, e, mode)
	if err != nil {
		r.release(e)
		r.logger.Debug("db.attach.locked", "db", name, "mode", mode.String())
		return nil, err
	}
	dbop, err := r.load(e)
	if err != nil {
		r.unlock(e, mode, fl)
		r.release(e)
		return nil, err
	}

	r.attached.Add(1)
	return &Handle{registry: r, entry: e, mode: mode, flock: fl, dbop: dbop}, nil
}

// Create makes a new empty database of the given size in bytes.
func (r *Registry) Create(ctx context.Context, name string, size int64) error {
	if !ValidName(name) {
		return ErrBadName
	}
	if size <= 0 {
		return ErrNoSize
	}
	if size > r.opts.MaxSize {
		return ErrTooBig
	}

	e := r.acquire(name, true)
	defer r.release(e)
	fl, err := r.lock(ctx, e, core.WriteLock)
	if err != nil {
		return err
	}
	defer r.unlock(e, core.WriteLock, fl)

	if _, err := r.load(e); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	var persistence *ps.Persistence
	if r.opts.BaseDir == "" {
		persistence, err = ps.NewMemoryPersistence()
	} else {
		persistence, err = ps.NewFilePersistence(r.dir(name))
	}
	if err != nil {
		return fmt.Errorf("database creation failed: %w", err)
	}

	_, dbop, err := op.CreateDatabase(core.Database{Name: name, Size: size}, persistence, r.opts.Identity)
	if err != nil {
		persistence.Destroy()
		return fmt.Errorf("database creation failed: %w", err)
	}

	if r.opts.BaseDir == "" {
		e.mu.Lock()
		e.dbop = dbop
		e.mu.Unlock()
	}
	r.logger.Info("db.create", "db", name, "size", size)
	return nil
}

// Drop deletes the named database and all of its records.
func (r *Registry) Drop(ctx context.Context, name string) error {
	if !ValidName(name) {
		return ErrBadName
	}

	e := r.acquire(name, false)
	if e == nil {
		return ErrNotFound
	}
	defer r.release(e)
	fl, err := r.lock(ctx, e, core.WriteLock)
	if err != nil {
		return err
	}
	defer r.unlock(e, core.WriteLock, fl)

	dbop, err := r.load(e)
	if err != nil {
		return err
	}
	if err := dbop.DropDatabase(); err != nil {
		return fmt.Errorf("database dropping failed: %w", err)
	}

	e.mu.Lock()
	e.dbop = nil
	e.mu.Unlock()
	r.logger.Info("db.drop", "db", name)
	return nil
}

func (r *Registry) Stats() Stats {
	return Stats{Attached: r.attached.Load(), Detached: r.detached.Load()}
}

func (r *Registry) Identity() core.Identity {
	return r.opts.Identity
}
