package db

import (
	"errors"

	"github.com/nickyhof/QueryGate/op"
)

var (
	ErrBadName      = errors.New("incorrect or missing database name")
	ErrNotFound     = errors.New("database does not exist")
	ErrExists       = errors.New("database exists already")
	ErrNoSize       = errors.New("database size not given")
	ErrTooBig       = errors.New("database size too big")
	ErrLockTimeout  = errors.New("database locked")
	ErrReadOnly     = errors.New("database attached for reading")
	ErrDatabaseFull = op.ErrDatabaseFull
)
