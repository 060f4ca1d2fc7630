package ps

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
)

var (
	ErrNotInitialized = errors.New("persistence layer not initialized")
	ErrRepoNotFound   = errors.New("repository not found")
)

// Persistence is the repository of one database. Commits are serialized
// by mu; readers work on immutable commit snapshots and need no lock.
type Persistence struct {
	repo *git.Repository
	mu   sync.Mutex
	dir  string // "" in memory mode
}

func (p *Persistence) IsInitialized() bool {
	return p != nil && p.repo != nil
}

func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// Dir returns the repository directory, or "" in memory mode.
func (p *Persistence) Dir() string {
	return p.dir
}

func NewMemoryPersistence() (*Persistence, error) {
	repo, err := git.Init(memory.NewStorage())
	if err != nil {
		return nil, err
	}
	return &Persistence{repo: repo}, nil
}

// bareStorage keeps the repository directly in dir, without a worktree.
func bareStorage(dir string) *filesystem.Storage {
	return filesystem.NewStorage(osfs.New(dir), cache.NewObjectLRUDefault())
}

// NewFilePersistence opens the repository in dir, creating it when it does
// not exist yet.
func NewFilePersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	storer := bareStorage(dir)
	repo, err := git.Open(storer, nil)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.Init(storer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	return &Persistence{repo: repo, dir: dir}, nil
}

// OpenFilePersistence opens an existing repository and fails with
// ErrRepoNotFound when dir holds none.
func OpenFilePersistence(dir string) (*Persistence, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, ErrRepoNotFound
	}
	repo, err := git.Open(bareStorage(dir), nil)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	return &Persistence{repo: repo, dir: dir}, nil
}

// Destroy drops the repository. Memory repositories are simply released.
func (p *Persistence) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.repo = nil
	if p.dir == "" {
		return nil
	}
	return os.RemoveAll(p.dir)
}
