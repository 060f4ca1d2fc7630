package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/encode"
	"github.com/nickyhof/QueryGate/op"
)

var errInput = errors.New("unsupported input value")

// ParseInput decodes the record to insert. The input is a JSON array of
// fields or an object with a "fields" array. A field is null, a number, a
// string, a boolean (stored as 0 or 1), a nested array inserted as its own
// record, or a typed object {"type": "char", "value": "x"} as written by
// snapshots.
func ParseInput(data []byte) ([]op.Field, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, requestError(MsgMissingJSON)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, wrapRequest(MsgJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, wrapRequest(MsgJSON, errors.New("trailing data after input"))
	}

	if obj, ok := doc.(map[string]any); ok {
		doc, ok = obj["fields"]
		if !ok {
			return nil, wrapRequest(MsgJSON, errors.New(`no "fields" in input object`))
		}
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, wrapRequest(MsgJSON, errors.New("input is not an array"))
	}
	fields, err := toFields(list, 0)
	if err != nil {
		return nil, wrapRequest(MsgJSON, err)
	}
	return fields, nil
}

func toFields(list []any, depth int) ([]op.Field, error) {
	if depth > encode.HardMaxDepth {
		return nil, errors.New("input nested too deep")
	}
	fields := make([]op.Field, len(list))
	for i, item := range list {
		if nested, ok := item.([]any); ok {
			children, err := toFields(nested, depth+1)
			if err != nil {
				return nil, err
			}
			fields[i] = op.NestedRecord(children...)
			continue
		}
		v, err := toValue(item)
		if err != nil {
			return nil, err
		}
		fields[i] = op.Scalar(v)
	}
	return fields, nil
}

func toValue(item any) (core.Value, error) {
	switch v := item.(type) {
	case nil:
		return core.Null(), nil
	case bool:
		if v {
			return core.Int(1), nil
		}
		return core.Int(0), nil
	case json.Number:
		return number(v.String())
	case string:
		return core.Str(v), nil
	case map[string]any:
		return typed(v)
	}
	return core.Value{}, errInput
}

func number(s string) (core.Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.Int(i), nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return core.Value{}, err
	}
	return core.Double(d), nil
}

func typed(obj map[string]any) (core.Value, error) {
	name, _ := obj["type"].(string)
	if name == "blob" {
		s, ok := obj["value"].(string)
		if !ok {
			return core.Value{}, errInput
		}
		return core.Blob([]byte(s)), nil
	}
	var text *string
	switch raw := obj["value"].(type) {
	case nil:
	case string:
		text = &raw
	case json.Number:
		s := raw.String()
		text = &s
	default:
		return core.Value{}, errInput
	}
	v, qerr := EncodeValue(&name, text)
	if qerr != nil {
		return core.Value{}, qerr
	}
	return v, nil
}
