package query

import (
	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/db"
	"github.com/nickyhof/QueryGate/encode"
)

// State is the lifecycle position of the request held by a slot.
type State int

const (
	Received State = iota
	Parsed
	Authorized
	Attached
	Executed
	Encoded
	Done
	Failed
)

var stateNames = []string{"received", "parsed", "authorized", "attached", "executed", "encoded", "done", "failed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Slot is the request context of one worker. It is reused for every request
// the worker runs and must not be shared between goroutines.
type Slot struct {
	Index  int
	Server bool // serves requests read from a socket
	CGI    bool // serves a single CGI or command line request

	buf    *encode.Buffer
	handle *db.Handle
	lock   core.LockMode
	inUse  bool
	state  State
	err    *Error

	ip, port string
	method   string
	op       string

	format   core.Format
	escape   core.Escape
	showID   bool
	depth    int
	jsonp    string
	hasJSONP bool
}

func NewSlot(index int) *Slot {
	return &Slot{Index: index, buf: encode.NewBuffer()}
}

// begin resets the slot for a new request.
func (s *Slot) begin(req Request) {
	s.buf.Reset()
	s.handle = nil
	s.lock = core.NoLock
	s.inUse = true
	s.state = Received
	s.err = nil
	s.ip, s.port, s.method, s.op = req.IP, req.Port, req.Method, ""
	s.format = core.JSONFormat
	s.escape = core.EscapeJSON
	s.showID = false
	s.depth = encode.DefaultMaxDepth
	s.jsonp, s.hasJSONP = "", false
}

func (s *Slot) output(q *parsed) {
	s.format = q.format
	s.escape = q.escape
	s.showID = q.showID
	s.depth = q.depth
	s.jsonp, s.hasJSONP = q.jsonp, q.hasJSONP
}

func (s *Slot) attach(h *db.Handle) {
	s.handle = h
	s.lock = h.Mode()
	s.state = Attached
}

// detach releases the database handle, if any. Safe to call repeatedly.
func (s *Slot) detach() {
	if s.handle == nil {
		return
	}
	s.handle.Detach()
	s.handle = nil
	s.lock = core.NoLock
}

// end runs on every path out of a request.
func (s *Slot) end() {
	s.detach()
	s.inUse = false
}

func (s *Slot) fail(err *Error) {
	s.err = err
	s.state = Failed
}

func (s *Slot) encoder(res encode.Resolver) *encode.Encoder {
	return encode.NewEncoder(s.buf, res, encode.Options{
		Format:   s.format,
		Escape:   s.escape,
		ShowID:   s.showID,
		MaxDepth: s.depth,
	})
}

func (s *Slot) State() State { return s.state }

func (s *Slot) InUse() bool { return s.inUse }

// LockMode is the lock held on the attached database, if any.
func (s *Slot) LockMode() core.LockMode { return s.lock }

// Err returns the error that ended the last request, or nil.
func (s *Slot) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}
