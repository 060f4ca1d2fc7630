//go:build !unix

package db

import (
	"os"

	"github.com/nickyhof/QueryGate/core"
)

// tryLockFile is a stub on non-Unix platforms; only the in-process lock
// applies there.
func tryLockFile(f *os.File, mode core.LockMode) (bool, error) { return true, nil }

// unlockFile is a stub counterpart to tryLockFile on non-Unix platforms.
func unlockFile(f *os.File) error { return nil }
