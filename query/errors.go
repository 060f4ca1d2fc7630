package query

import (
	"fmt"
)

// Severity classifies how far an error reaches.
type Severity int

const (
	// SeverityField errors stay inside the encoder, which renders the field
	// as an empty string and continues. They are only logged.
	SeverityField Severity = iota
	// SeverityRequest errors end the request with an error payload.
	SeverityRequest
	// SeverityProcess errors leave shared state suspect. The server stops.
	SeverityProcess
)

func (s Severity) String() string {
	switch s {
	case SeverityField:
		return "field"
	case SeverityRequest:
		return "request"
	}
	return "process"
}

type Error struct {
	Severity Severity
	Msg      string
	Err      error // underlying cause, not shown to callers
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func requestError(msg string) *Error {
	return &Error{Severity: SeverityRequest, Msg: msg}
}

func requestErrorf(format string, args ...any) *Error {
	return &Error{Severity: SeverityRequest, Msg: fmt.Sprintf(format, args...)}
}

func wrapRequest(msg string, err error) *Error {
	return &Error{Severity: SeverityRequest, Msg: msg, Err: err}
}

func processError(msg string, err error) *Error {
	return &Error{Severity: SeverityProcess, Msg: msg, Err: err}
}

// Messages returned to callers.
const (
	MsgNoQuery        = "no query"
	MsgLongQuery      = "too long query"
	MsgMalformedQuery = "malformed query"
	MsgUnknownParam   = "unrecognized parameter: %s"
	MsgUnknownValue   = "unrecognized value %s for parameter %s"
	MsgNoOp           = "no op given: use op=opname for opname in search,insert,..."
	MsgUnknownOp      = "unrecognized op: use op=search or op=recids"
	MsgNoField        = "no field given"
	MsgNoValue        = "no value given"
	MsgDBParam        = "use db=name with a numeric name for a concrete database"
	MsgDBAttach       = "no database found: use db=name with a numeric name for a concrete database"
	MsgField          = "unrecognized field: use an integer starting from 0"
	MsgCond           = "unrecognized compare: use equal, not_equal, lessthan, greater, ltequal or gtequal"
	MsgType           = "unrecognized type: use null, int, double, str, char or record "
	MsgValue          = "did not find a value to use for comparison"
	MsgValueType      = "value does not match type"
	MsgDecode         = "field data decoding failed"
	MsgDelete         = "record deletion failed"
	MsgUpdate         = "record update failed"
	MsgDBNoSize       = "database size not given"
	MsgDBBigSize      = "database size too big"
	MsgDBExists       = "database exists already"
	MsgDBNotExists    = "database does not exist"
	MsgDBCreate       = "database creation failed"
	MsgDBDrop         = "database dropping failed"
	MsgDBName         = "incorrect or missing database name"
	MsgDBAuthorize    = "access to database not authorized"
	MsgDBFull         = "database full"
	MsgMethod         = "method given in http not implemented: use GET"
	MsgHTTPRequest    = "incorrect http request"
	MsgHTTPNoQuery    = "no query found"
	MsgCGIQuery       = "cannot get query string: maybe bad/missing content-length?"
	MsgMalloc         = "cannot allocate enough memory for result string"
	MsgNotAuthorized  = "query not authorized"
	MsgNoCreateAuth   = "database missing and creation of new database not authorized"
	MsgMissingJSON    = "input json missing"
	MsgJSON           = "json parsing failed"
	MsgRecidsCombined = "search by record ids cannot be combined with search by fields"
	MsgSnapshotPath   = "snapshot destination missing: use path=destination"
	MsgSnapshot       = "snapshot failed"
	MsgTimeout        = "timeout"
	MsgInternal       = "internal error"
	MsgLocked         = "database locked"
	MsgInconsistent   = "database inconsistent"
)
