package op

import (
	"fmt"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/ps"
)

// Field is one field of a record to insert. A nested field carries the
// fields of a record that is inserted first and referenced from the parent.
type Field struct {
	Value  core.Value
	Record []Field
	Nested bool
}

func Scalar(v core.Value) Field {
	return Field{Value: v}
}

func NestedRecord(fields ...Field) Field {
	return Field{Record: fields, Nested: true}
}

// Insert stores a record, and any nested records it contains, in a single
// commit. It returns the id of the top level record.
func (op *DatabaseOp) Insert(fields []Field, identity core.Identity) (int64, ps.Transaction, error) {
	batch, err := op.Persistence.NewBatch()
	if err != nil {
		return 0, ps.Transaction{}, err
	}

	database := op.Database
	id, err := stage(batch, &database, fields)
	if err != nil {
		batch.Discard()
		return 0, ps.Transaction{}, err
	}
	if err := batch.PutDatabase(database); err != nil {
		batch.Discard()
		return 0, ps.Transaction{}, err
	}

	txn, err := batch.Commit(identity, fmt.Sprintf("Inserting record %d", id))
	if err != nil {
		return 0, ps.Transaction{}, err
	}
	op.Database = database
	return id, txn, nil
}

func stage(batch *ps.Batch, database *core.Database, fields []Field) (int64, error) {
	values := make([]core.Value, len(fields))
	for i, f := range fields {
		if !f.Nested {
			values[i] = f.Value
			continue
		}
		childID, err := stage(batch, database, f.Record)
		if err != nil {
			return 0, err
		}
		values[i] = core.Ref(childID)
	}

	rec := core.Record{ID: database.NextID, Fields: values}
	if database.Used+rec.Size() > database.Size {
		return 0, ErrDatabaseFull
	}
	if err := batch.PutRecord(rec); err != nil {
		return 0, err
	}
	database.NextID++
	database.Used += rec.Size()
	return rec.ID, nil
}
