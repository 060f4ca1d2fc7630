//go:build unix

package db

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nickyhof/QueryGate/core"
)

// tryLockFile takes a shared or exclusive advisory lock on f without
// blocking. It reports false when another open file holds a conflicting
// lock.
func tryLockFile(f *os.File, mode core.LockMode) (bool, error) {
	how := unix.LOCK_SH
	if mode == core.WriteLock {
		how = unix.LOCK_EX
	}
	err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

// unlockFile releases any advisory lock held on f.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
