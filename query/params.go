package query

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/encode"
	"github.com/nickyhof/QueryGate/op"
)

const (
	MaxQueryLen = 2000     // query string of a GET request
	MaxBodyLen  = 10000000 // form or json body of a POST request
	MaxParams   = 100
)

// Param is one decoded name=value pair of a query.
type Param struct {
	Name  string
	Value string
}

// ParseParams splits a raw query string into its decoded pairs, in order.
// Empty pieces between separators are skipped.
func ParseParams(raw string, maxLen int) ([]Param, error) {
	if raw == "" {
		return nil, requestError(MsgNoQuery)
	}
	if len(raw) > maxLen {
		return nil, requestError(MsgLongQuery)
	}

	var params []Param
	for piece := range strings.SplitSeq(raw, "&") {
		if piece == "" {
			continue
		}
		if len(params) == MaxParams {
			return nil, requestError(MsgLongQuery)
		}
		name, value, _ := strings.Cut(piece, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			return nil, wrapRequest(MsgMalformedQuery, err)
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, wrapRequest(MsgMalformedQuery, err)
		}
		params = append(params, Param{Name: name, Value: value})
	}
	if len(params) == 0 {
		return nil, requestError(MsgNoQuery)
	}
	return params, nil
}

type opKind int

const (
	opSearch opKind = iota
	opCount
	opInsert
	opUpdate
	opDelete
	opCreate
	opDrop
	opSnapshot
)

var opNames = map[string]opKind{
	"search":   opSearch,
	"recids":   opSearch,
	"count":    opCount,
	"insert":   opInsert,
	"update":   opUpdate,
	"delete":   opDelete,
	"create":   opCreate,
	"drop":     opDrop,
	"snapshot": opSnapshot,
}

func (k opKind) String() string {
	switch k {
	case opSearch:
		return "search"
	case opCount:
		return "count"
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	case opCreate:
		return "create"
	case opDrop:
		return "drop"
	}
	return "snapshot"
}

// level is the access tier the operation needs.
func (k opKind) level() core.Level {
	switch k {
	case opCreate, opDrop, opSnapshot:
		return core.AdminLevel
	case opInsert, opUpdate, opDelete:
		return core.WriteLevel
	}
	return core.ReadLevel
}

// lockMode is the database lock the operation holds while it runs. Create
// and drop lock inside the registry.
func (k opKind) lockMode() core.LockMode {
	switch k {
	case opInsert, opUpdate, opDelete:
		return core.WriteLock
	case opCreate, opDrop:
		return core.NoLock
	}
	return core.ReadLock
}

func (k opKind) strategy() op.Strategy {
	switch k {
	case opCount:
		return op.Count
	case opUpdate:
		return op.Update
	case opDelete:
		return op.Delete
	}
	return op.Collect
}

// parsed is a decoded query. scan fills in the raw selection parameters;
// validate turns them into conditions once the caller is authorized.
type parsed struct {
	op       opKind
	db       string
	conds    []core.Condition
	ids      []int64
	from     int
	count    int
	set      *op.Assignment
	size     int64
	hasSize  bool
	token    string
	values   string
	hasInput bool
	path     string

	format   core.Format
	escape   core.Escape
	showID   bool
	depth    int
	jsonp    string
	hasJSONP bool

	fields, condNames, types, vals []string
	recids                         []string
	setField, setType, setValue    *string
}

// decode scans and validates params in one go.
func decode(params []Param, allowUnknown bool) (*parsed, *Error) {
	q, err := scan(params, allowUnknown)
	if err != nil {
		return q, err
	}
	return q, q.validate()
}

// scan checks parameter names, output options and the op. Later
// occurrences of a single-valued parameter replace earlier ones. The
// returned query is never nil, so output options seen before an error still
// apply to the error payload.
func scan(params []Param, allowUnknown bool) (*parsed, *Error) {
	q := &parsed{format: core.JSONFormat, escape: core.EscapeJSON, depth: encode.DefaultMaxDepth}
	var (
		opName string
		hasOp  bool
	)

	for _, p := range params {
		switch p.Name {
		case "op":
			opName, hasOp = p.Value, true
		case "db":
			q.db = p.Value
		case "field":
			q.fields = append(q.fields, p.Value)
		case "cond":
			q.condNames = append(q.condNames, p.Value)
		case "type":
			q.types = append(q.types, p.Value)
		case "value":
			q.vals = append(q.vals, p.Value)
		case "from", "count", "depth":
			n, err := strconv.Atoi(p.Value)
			if err != nil || n < 0 {
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
			switch p.Name {
			case "from":
				q.from = n
			case "count":
				q.count = n
			default:
				q.depth = min(n, encode.HardMaxDepth)
			}
		case "showid":
			switch p.Value {
			case "yes", "true", "1":
				q.showID = true
			case "no", "false", "0":
				q.showID = false
			default:
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
		case "format":
			f, ok := core.ParseFormat(p.Value)
			if !ok {
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
			q.format = f
		case "escape":
			e, ok := core.ParseEscape(p.Value)
			if !ok {
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
			q.escape = e
		case "jsonp":
			if !validCallback(p.Value) {
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
			q.jsonp, q.hasJSONP = p.Value, true
		case "recids":
			q.recids = append(q.recids, p.Value)
		case "setfield":
			q.setField = &p.Value
		case "settype":
			q.setType = &p.Value
		case "setvalue":
			q.setValue = &p.Value
		case "size":
			n, err := strconv.ParseInt(p.Value, 10, 64)
			if err != nil || n < 0 {
				return q, requestErrorf(MsgUnknownValue, p.Value, p.Name)
			}
			q.size, q.hasSize = n, true
		case "token":
			q.token = p.Value
		case "values":
			q.values, q.hasInput = p.Value, true
		case "path":
			q.path = p.Value
		case "_":
		default:
			if !allowUnknown {
				return q, requestErrorf(MsgUnknownParam, p.Name)
			}
		}
	}

	if !hasOp || opName == "" {
		return q, requestError(MsgNoOp)
	}
	kind, ok := opNames[opName]
	if !ok {
		return q, requestError(MsgUnknownOp)
	}
	q.op = kind
	return q, nil
}

// validate decodes the selection and update parameters of a scanned query.
func (q *parsed) validate() *Error {
	for _, raw := range q.recids {
		ids, err := parseIDs(raw)
		if err != nil {
			return requestErrorf(MsgUnknownValue, raw, "recids")
		}
		q.ids = append(q.ids, ids...)
	}
	if len(q.recids) > 0 && len(q.fields) > 0 {
		return requestError(MsgRecidsCombined)
	}
	if len(q.condNames) > len(q.fields) || len(q.types) > len(q.fields) || len(q.vals) > len(q.fields) {
		return requestError(MsgNoField)
	}
	q.conds = q.conds[:0]
	for i, f := range q.fields {
		c, err := condition(f, at(q.condNames, i), at(q.types, i), at(q.vals, i))
		if err != nil {
			return err
		}
		q.conds = append(q.conds, c)
	}

	if q.op == opUpdate {
		if q.setField == nil {
			return requestError(MsgNoField)
		}
		idx, err := encodeField(*q.setField)
		if err != nil {
			return err
		}
		if q.setValue == nil && (q.setType == nil || *q.setType != "null") {
			return requestError(MsgNoValue)
		}
		v, err := EncodeValue(q.setType, q.setValue)
		if err != nil {
			return err
		}
		q.set = &op.Assignment{Field: idx, Value: v}
	}
	return nil
}

// validCallback reports whether name is safe to echo as a jsonp function
// name.
func validCallback(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '$', c == '.':
		default:
			return false
		}
	}
	return true
}

func at(list []string, i int) *string {
	if i < len(list) {
		return &list[i]
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func condition(field string, cond, typ, value *string) (core.Condition, *Error) {
	idx, err := encodeField(field)
	if err != nil {
		return core.Condition{}, err
	}
	c := core.Equal
	if cond != nil {
		if c, err = EncodeCond(*cond); err != nil {
			return core.Condition{}, err
		}
	}
	v, err := EncodeValue(typ, value)
	if err != nil {
		return core.Condition{}, err
	}
	return core.Condition{Field: idx, Cond: c, Value: v}, nil
}

func encodeField(s string) (int, *Error) {
	if s == "" {
		return 0, requestError(MsgNoField)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, requestError(MsgField)
	}
	return n, nil
}

// EncodeCond maps a comparison name to its condition.
func EncodeCond(name string) (core.Cond, *Error) {
	c, ok := core.ParseCond(name)
	if !ok {
		return core.Equal, requestError(MsgCond)
	}
	return c, nil
}

// EncodeType maps a type name to a field type.
func EncodeType(name string) (core.FieldType, *Error) {
	t, ok := core.ParseFieldType(name)
	if !ok {
		return core.NullType, requestError(MsgType)
	}
	return t, nil
}

// EncodeValue decodes a comparison value. Without a type the value is read
// as an int, then a double, and otherwise kept as a string.
func EncodeValue(typ, value *string) (core.Value, *Error) {
	if typ == nil {
		if value == nil {
			return core.Value{}, requestError(MsgValue)
		}
		if i, err := strconv.ParseInt(*value, 10, 64); err == nil {
			return core.Int(i), nil
		}
		if d, err := strconv.ParseFloat(*value, 64); err == nil {
			return core.Double(d), nil
		}
		return core.Str(*value), nil
	}

	t, err := EncodeType(*typ)
	if err != nil {
		return core.Value{}, err
	}
	if t == core.NullType {
		return core.Null(), nil
	}
	if value == nil {
		return core.Value{}, requestError(MsgValue)
	}
	s := *value
	switch t {
	case core.IntType, core.RecordType:
		i, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return core.Value{}, requestError(MsgValueType)
		}
		if t == core.RecordType {
			return core.Ref(i), nil
		}
		return core.Int(i), nil
	case core.DoubleType:
		d, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return core.Value{}, requestError(MsgValueType)
		}
		return core.Double(d), nil
	case core.CharType:
		r, size := utf8.DecodeRuneInString(s)
		if s == "" || size != len(s) || r == utf8.RuneError {
			return core.Value{}, requestError(MsgValueType)
		}
		return core.Char(r), nil
	}
	return core.Str(s), nil
}
