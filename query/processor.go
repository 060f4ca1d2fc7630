package query

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/access"
	"github.com/nickyhof/QueryGate/config"
	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/db"
	"github.com/nickyhof/QueryGate/encode"
	"github.com/nickyhof/QueryGate/op"
)

// DefaultDatabase is used when neither the query nor the configuration
// names a database.
const DefaultDatabase = "1000"

// Request is one query as received from HTTP, CGI or the command line.
type Request struct {
	Method      string // GET or POST; empty means GET
	Query       string // raw query string, still percent-encoded
	Body        []byte
	ContentType string
	IP          string
	Port        string
	Token       string // bearer token from the request headers
}

// Response is the payload of a finished request. Body aliases the slot
// buffer and is valid until the slot runs its next request.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Op          string
	Duration    time.Duration
	Err         error // nil on success, a *Error otherwise
}

type Options struct {
	Config   *config.Config
	Policy   *access.Policy
	Registry *db.Registry
	Logger   pslog.Logger
}

// Processor runs requests. It holds no per-request state and is safe for
// concurrent use with distinct slots.
type Processor struct {
	policy       *access.Policy
	registry     *db.Registry
	logger       pslog.Logger
	allowUnknown bool
	defaultDB    string
	defaultSize  int64

	beforeExecute func(*db.Handle) // test hook, runs with the handle attached
}

func NewProcessor(opts Options) (*Processor, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	allowUnknown, err := cfg.Bool(config.AllowUnknownParams, false)
	if err != nil {
		return nil, err
	}
	defaultSize, err := cfg.Int(config.DefaultDbaseSize, db.DefaultDatabaseSize)
	if err != nil {
		return nil, err
	}
	defaultDB := cfg.First(config.DefaultDbase)
	if defaultDB == "" {
		defaultDB = DefaultDatabase
	}

	policy := opts.Policy
	if policy == nil {
		if policy, err = access.NewPolicy(cfg); err != nil {
			return nil, err
		}
	}
	registry := opts.Registry
	if registry == nil {
		registry = db.NewRegistry(db.Options{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Processor{
		policy:       policy,
		registry:     registry,
		logger:       logger.With("sys", "query.processor"),
		allowUnknown: allowUnknown,
		defaultDB:    defaultDB,
		defaultSize:  defaultSize,
	}, nil
}

func (p *Processor) Registry() *db.Registry {
	return p.registry
}

// Process runs req to completion in slot and returns the response. Errors
// are reported in the response payload; the database handle attached for
// the request is always released before Process returns.
func (p *Processor) Process(ctx context.Context, slot *Slot, req Request) (resp Response) {
	start := time.Now()
	slot.begin(req)
	defer slot.end()

	var qerr *Error
	func() {
		defer func() {
			if r := recover(); r != nil {
				qerr = p.recovered(slot, r)
			}
		}()
		qerr = p.run(ctx, slot, req)
	}()

	if qerr != nil {
		slot.fail(qerr)
		p.writeError(slot, qerr)
		p.logFailure(slot, qerr)
	} else {
		slot.state = Done
	}

	resp = Response{
		Status:      200,
		ContentType: slot.format.ContentType(),
		Body:        slot.buf.Bytes(),
		Op:          slot.op,
		Duration:    time.Since(start),
	}
	if qerr != nil {
		resp.Err = qerr
	}
	return resp
}

// Fail answers a request that could not be read, such as a malformed HTTP
// request, with the error payload for msg.
func (p *Processor) Fail(slot *Slot, req Request, msg string) Response {
	slot.begin(req)
	defer slot.end()
	qerr := requestError(msg)
	slot.fail(qerr)
	p.writeError(slot, qerr)
	p.logFailure(slot, qerr)
	return Response{
		Status:      200,
		ContentType: slot.format.ContentType(),
		Body:        slot.buf.Bytes(),
		Err:         qerr,
	}
}

// recovered turns a panic into an error. A panic while a write lock is held
// may have left the database half written.
func (p *Processor) recovered(slot *Slot, r any) *Error {
	err := fmt.Errorf("panic: %v", r)
	if slot.lock == core.WriteLock {
		return processError(MsgInconsistent, err)
	}
	return wrapRequest(MsgInternal, err)
}

func (p *Processor) run(ctx context.Context, slot *Slot, req Request) *Error {
	params, body, qerr := splitRequest(req)
	if qerr != nil {
		return qerr
	}
	q, qerr := scan(params, p.allowUnknown)
	slot.output(q)
	if qerr != nil {
		return qerr
	}
	slot.op = q.op.String()
	slot.state = Parsed

	name := q.db
	if name == "" {
		name = p.defaultDB
	}
	token := q.token
	if token == "" {
		token = req.Token
	}
	if err := p.policy.Check(q.op.level(), req.IP, token, name); err != nil {
		if errors.Is(err, access.ErrDatabaseDenied) {
			return wrapRequest(MsgDBAuthorize, err)
		}
		return wrapRequest(MsgNotAuthorized, err)
	}
	slot.state = Authorized

	if !db.ValidName(name) {
		if q.op == opCreate || q.op == opDrop {
			return requestError(MsgDBName)
		}
		return requestError(MsgDBParam)
	}
	if qerr := q.validate(); qerr != nil {
		return qerr
	}
	identity := p.policy.Identity(req.IP, token, p.registry.Identity())

	var fields []op.Field
	if q.op == opInsert {
		input := body
		if q.hasInput {
			input = []byte(q.values)
		}
		var err error
		if fields, err = ParseInput(input); err != nil {
			return asError(err)
		}
	}
	if q.op == opSnapshot && q.path == "" {
		return requestError(MsgSnapshotPath)
	}

	result := db.Result{Op: q.op.String(), Database: name}
	started := time.Now()
	switch q.op {
	case opCreate:
		if qerr := p.create(ctx, slot, q, name); qerr != nil {
			return qerr
		}
	case opDrop:
		if err := p.registry.Drop(ctx, name); err != nil {
			return lifecycleError(err, MsgDBDrop)
		}
		slot.state = Executed
		if qerr := p.encodeText(slot, "OK"); qerr != nil {
			return qerr
		}
	default:
		h, qerr := p.attach(ctx, q, name, req.IP, token)
		if qerr != nil {
			return qerr
		}
		slot.attach(h)
		if p.beforeExecute != nil {
			p.beforeExecute(h)
		}
		if qerr := p.execute(ctx, slot, h, q, fields, identity, &result); qerr != nil {
			return qerr
		}
		slot.detach()
	}
	slot.state = Encoded
	result.Elapsed = time.Since(started)
	p.logResult(slot, result)
	return nil
}

// splitRequest returns the query parameters of req and, for JSON posts, the
// input body.
func splitRequest(req Request) ([]Param, []byte, *Error) {
	var (
		params []Param
		body   []byte
		err    error
	)
	switch req.Method {
	case "", "GET":
		params, err = ParseParams(req.Query, MaxQueryLen)
	case "POST":
		media, _, _ := mime.ParseMediaType(req.ContentType)
		switch {
		case len(req.Body) > MaxBodyLen:
			return nil, nil, requestError(MsgLongQuery)
		case media == "application/json":
			params, err = ParseParams(req.Query, MaxQueryLen)
			body = req.Body
		case len(req.Body) == 0:
			params, err = ParseParams(req.Query, MaxQueryLen)
		default:
			params, err = ParseParams(string(req.Body), MaxBodyLen)
		}
	default:
		return nil, nil, requestError(MsgMethod)
	}
	if err != nil {
		return nil, nil, asError(err)
	}
	return params, body, nil
}

func (p *Processor) attach(ctx context.Context, q *parsed, name, ip, token string) (*db.Handle, *Error) {
	mode := q.op.lockMode()
	h, err := p.registry.Attach(ctx, name, mode)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, db.ErrNotFound) || q.op != opInsert {
		return nil, attachError(err)
	}

	if p.defaultSize <= 0 {
		return nil, wrapRequest(MsgDBAttach, err)
	}
	if !p.policy.Authorize(core.AdminLevel, ip, token, name) {
		return nil, requestError(MsgNoCreateAuth)
	}
	if err := p.registry.Create(ctx, name, p.defaultSize); err != nil && !errors.Is(err, db.ErrExists) {
		return nil, lifecycleError(err, MsgDBCreate)
	}
	p.logger.Info("query.insert.create", "db", name, "size", p.defaultSize)
	h, err = p.registry.Attach(ctx, name, mode)
	if err != nil {
		return nil, attachError(err)
	}
	return h, nil
}

func (p *Processor) create(ctx context.Context, slot *Slot, q *parsed, name string) *Error {
	size := q.size
	if !q.hasSize {
		size = p.defaultSize
	}
	if err := p.registry.Create(ctx, name, size); err != nil {
		return lifecycleError(err, MsgDBCreate)
	}
	slot.state = Executed
	return p.encodeText(slot, "OK")
}

func (p *Processor) execute(ctx context.Context, slot *Slot, h *db.Handle, q *parsed, fields []op.Field, identity core.Identity, result *db.Result) *Error {
	switch q.op {
	case opInsert:
		id, txn, err := h.Insert(fields, identity)
		if err != nil {
			return executeError(err, MsgInternal)
		}
		slot.state = Executed
		result.Transaction = txn
		result.Written = countRecords(fields)
		return p.encodeNumber(slot, h, id)

	case opSnapshot:
		snap, err := h.Snapshot(ctx, q.path)
		if err != nil {
			return executeError(err, MsgSnapshot)
		}
		slot.state = Executed
		result.Read = snap.Records
		return p.encodeNumber(slot, h, int64(snap.Records))
	}

	query := op.Query{Conds: q.conds, IDs: q.ids, From: q.from, Limit: q.count, Set: q.set}
	strategy := q.op.strategy()
	out, err := h.Traverse(ctx, query, strategy, identity)
	if err != nil {
		msg := MsgInternal
		switch strategy {
		case op.Delete:
			msg = MsgDelete
		case op.Update:
			msg = MsgUpdate
		}
		return executeError(err, msg)
	}
	slot.state = Executed
	result.Transaction = out.Transaction

	switch strategy {
	case op.Collect:
		result.Read = out.Matched
		p.wrapOpen(slot)
		enc := slot.encoder(h)
		if err := enc.Records(out.Records); err != nil {
			return bufferError(err)
		}
		if n := enc.Degraded(); n > 0 {
			p.logFailure(slot, &Error{Severity: SeverityField, Msg: MsgDecode, Err: fmt.Errorf("%d field(s) rendered empty", n)})
		}
		return p.wrapClose(slot)
	case op.Delete:
		result.Deleted = out.Matched
	case op.Update:
		result.Written = out.Matched
	default:
		result.Read = out.Matched
	}
	return p.encodeNumber(slot, h, int64(out.Matched))
}

// wrapOpen and wrapClose add the jsonp padding around a payload.
func (p *Processor) wrapOpen(slot *Slot) {
	if slot.hasJSONP {
		slot.buf.WriteString(slot.jsonp)
		slot.buf.WriteByte('(')
	}
}

func (p *Processor) wrapClose(slot *Slot) *Error {
	if slot.hasJSONP {
		if _, err := slot.buf.WriteString(");"); err != nil {
			return bufferError(err)
		}
	}
	return nil
}

func (p *Processor) encodeNumber(slot *Slot, res encode.Resolver, n int64) *Error {
	p.wrapOpen(slot)
	if err := slot.encoder(res).Value(core.Int(n)); err != nil {
		return bufferError(err)
	}
	if slot.format == core.CSVFormat {
		slot.buf.WriteByte('\n')
	}
	return p.wrapClose(slot)
}

func (p *Processor) encodeText(slot *Slot, s string) *Error {
	p.wrapOpen(slot)
	if err := slot.encoder(nil).Text(s); err != nil {
		return bufferError(err)
	}
	if slot.format == core.CSVFormat {
		slot.buf.WriteByte('\n')
	}
	return p.wrapClose(slot)
}

// writeError replaces whatever was written so far with the error payload.
func (p *Processor) writeError(slot *Slot, qerr *Error) {
	slot.buf.Truncate(0)
	enc := encode.NewEncoder(slot.buf, nil, encode.Options{Format: core.JSONFormat, Escape: core.EscapeJSON})
	if slot.hasJSONP {
		slot.buf.WriteString(slot.jsonp)
		slot.buf.WriteByte('(')
		enc.Text("ERROR: " + qerr.Msg)
		slot.buf.WriteString(");")
		return
	}
	enc.Text("ERROR: " + qerr.Msg)
}

func (p *Processor) logResult(slot *Slot, result db.Result) {
	kv := []any{"slot", slot.Index, "ip", slot.ip, "db", result.Database, "op", result.Op, "result", result.Summary()}
	if result.Transaction.Id != "" {
		p.logger.Info("query.request.done", append(kv, "txn", result.Transaction.Id)...)
		return
	}
	p.logger.Debug("query.request.done", kv...)
}

func (p *Processor) logFailure(slot *Slot, qerr *Error) {
	kv := []any{"slot", slot.Index, "ip", slot.ip, "op", slot.op, "severity", qerr.Severity.String(), "error", qerr.Msg}
	if qerr.Err != nil {
		kv = append(kv, "cause", qerr.Err.Error())
	}
	switch qerr.Severity {
	case SeverityProcess:
		p.logger.Error("query.request.failed", kv...)
	case SeverityField:
		p.logger.Warn("query.field.degraded", kv...)
	default:
		p.logger.Debug("query.request.failed", kv...)
	}
}

func asError(err error) *Error {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr
	}
	return wrapRequest(MsgInternal, err)
}

func bufferError(err error) *Error {
	if errors.Is(err, encode.ErrBufferFull) {
		return wrapRequest(MsgMalloc, err)
	}
	return wrapRequest(MsgInternal, err)
}

func attachError(err error) *Error {
	switch {
	case errors.Is(err, db.ErrLockTimeout):
		return wrapRequest(MsgLocked, err)
	case errors.Is(err, db.ErrNotFound):
		return wrapRequest(MsgDBAttach, err)
	case errors.Is(err, db.ErrBadName):
		return wrapRequest(MsgDBParam, err)
	}
	return wrapRequest(MsgInternal, err)
}

func lifecycleError(err error, fallback string) *Error {
	switch {
	case errors.Is(err, db.ErrLockTimeout):
		return wrapRequest(MsgLocked, err)
	case errors.Is(err, db.ErrBadName):
		return wrapRequest(MsgDBName, err)
	case errors.Is(err, db.ErrNoSize):
		return wrapRequest(MsgDBNoSize, err)
	case errors.Is(err, db.ErrTooBig):
		return wrapRequest(MsgDBBigSize, err)
	case errors.Is(err, db.ErrExists):
		return wrapRequest(MsgDBExists, err)
	case errors.Is(err, db.ErrNotFound):
		return wrapRequest(MsgDBNotExists, err)
	}
	return wrapRequest(fallback, err)
}

func executeError(err error, fallback string) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return wrapRequest(MsgTimeout, err)
	case errors.Is(err, db.ErrDatabaseFull):
		return wrapRequest(MsgDBFull, err)
	case errors.Is(err, op.ErrNoAssignment):
		return wrapRequest(MsgNoField, err)
	}
	return wrapRequest(fallback, err)
}

// countRecords counts the records an insert stores, nested ones included.
func countRecords(fields []op.Field) int {
	n := 1
	for _, f := range fields {
		if f.Nested {
			n += countRecords(f.Record)
		}
	}
	return n
}
