package QueryGate

import (
	"context"
	"errors"
)

// Exit codes follow sysexits(3).
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitNoInput     = 66
	ExitUnavailable = 69
	ExitSoftware    = 70
	ExitTempFail    = 75
	ExitConfig      = 78
)

var (
	ErrNoInput     = errors.New("input missing")
	ErrUnavailable = errors.New("service unavailable")
	ErrSoftware    = errors.New("internal software error")
	ErrTempFail    = errors.New("temporary failure")
	ErrConfig      = errors.New("configuration error")
)

// ExitCode maps an error returned by the gateway binaries to a process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitOK
	case errors.Is(err, ErrNoInput):
		return ExitNoInput
	case errors.Is(err, ErrUnavailable):
		return ExitUnavailable
	case errors.Is(err, ErrSoftware):
		return ExitSoftware
	case errors.Is(err, ErrTempFail), errors.Is(err, context.DeadlineExceeded):
		return ExitTempFail
	case errors.Is(err, ErrConfig):
		return ExitConfig
	}
	return ExitFailure
}
