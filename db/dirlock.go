package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nickyhof/QueryGate/core"
)

const (
	lockPollMin = 2 * time.Millisecond
	lockPollMax = 50 * time.Millisecond
)

// fileLock is the lock a process holds on one database directory. It keeps
// CGI and command line processes sharing a base directory from writing the
// same database at once.
type fileLock struct {
	f *os.File
}

func lockFilePath(baseDir, name string) string {
	return filepath.Join(baseDir, "."+name+".lock")
}

// acquireFileLock polls for the lock until ctx is done.
func acquireFileLock(ctx context.Context, path string, mode core.LockMode) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	wait := lockPollMin
	for {
		ok, err := tryLockFile(f, mode)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		if ok {
			return &fileLock{f: f}, nil
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, lockPollMax)
	}
}

// release is safe on a nil lock, which is what memory mode uses.
func (l *fileLock) release() {
	if l == nil {
		return
	}
	unlockFile(l.f)
	l.f.Close()
}
