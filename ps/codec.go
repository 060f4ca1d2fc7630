package ps

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nickyhof/QueryGate/core"
)

// storedField is the on-disk form of a single field. Fields are encoded
// one by one so that a damaged field does not take its siblings with it.
type storedField struct {
	T int8    `msgpack:"t"`
	I int64   `msgpack:"i,omitempty"`
	D float64 `msgpack:"d,omitempty"`
	S []byte  `msgpack:"s,omitempty"`
}

type storedRecord struct {
	ID     int64                `msgpack:"id"`
	Fields []msgpack.RawMessage `msgpack:"f"`
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec core.Record) ([]byte, error) {
	stored := storedRecord{ID: rec.ID, Fields: make([]msgpack.RawMessage, len(rec.Fields))}
	for i, v := range rec.Fields {
		f := storedField{T: int8(v.Type)}
		switch v.Type {
		case core.NullType:
		case core.IntType, core.RecordType:
			f.I = v.Int
		case core.DoubleType:
			f.D = v.Double
		case core.StrType, core.CharType, core.BlobType:
			f.S = []byte(v.Str)
		default:
			return nil, fmt.Errorf("field %d: cannot store type %s", i, v.Type)
		}
		raw, err := msgpack.Marshal(&f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		stored.Fields[i] = raw
	}
	return msgpack.Marshal(&stored)
}

// DecodeRecord restores a stored record. Fields that cannot be decoded come
// back as core.IllegalType values; only a damaged record envelope is an
// error.
func DecodeRecord(data []byte) (core.Record, error) {
	var stored storedRecord
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return core.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	rec := core.Record{ID: stored.ID, Fields: make([]core.Value, len(stored.Fields))}
	for i, raw := range stored.Fields {
		rec.Fields[i] = decodeField(raw)
	}
	return rec, nil
}

func decodeField(raw msgpack.RawMessage) core.Value {
	var f storedField
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		return core.Value{Type: core.IllegalType}
	}
	switch t := core.FieldType(f.T); t {
	case core.NullType:
		return core.Null()
	case core.IntType:
		return core.Int(f.I)
	case core.RecordType:
		return core.Ref(f.I)
	case core.DoubleType:
		return core.Double(f.D)
	case core.StrType, core.CharType, core.BlobType:
		return core.Value{Type: t, Str: string(f.S)}
	}
	return core.Value{Type: core.IllegalType}
}
