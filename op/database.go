package op

import (
	"errors"
	"fmt"
	"iter"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/ps"
)

var (
	ErrDatabaseFull = errors.New("database full")
	ErrNoRecord     = errors.New("record not found")
)

type DatabaseOp struct {
	Database    core.Database
	Persistence *ps.Persistence
}

func CreateDatabase(database core.Database, persistence *ps.Persistence, identity core.Identity) (*ps.Transaction, *DatabaseOp, error) {
	if database.NextID < 1 {
		database.NextID = 1
	}
	txn, err := persistence.CreateDatabase(database, identity)
	if err != nil {
		return nil, nil, err
	}

	return &txn, &DatabaseOp{
		Database:    database,
		Persistence: persistence,
	}, nil
}

func GetDatabase(persistence *ps.Persistence) (*DatabaseOp, error) {
	d, err := persistence.GetDatabase()
	if err != nil {
		return nil, err
	}
	return &DatabaseOp{
		Database:    *d,
		Persistence: persistence,
	}, nil
}

// DropDatabase removes the database and its history.
func (op *DatabaseOp) DropDatabase() error {
	return op.Persistence.Destroy()
}

// Record returns the record with the given id.
func (op *DatabaseOp) Record(id int64) (core.Record, error) {
	data, exists := op.Persistence.GetRecord(id)
	if !exists {
		return core.Record{}, fmt.Errorf("%w: %d", ErrNoRecord, id)
	}
	return ps.DecodeRecord(data)
}

// Scan yields every record in id order. Records whose envelope cannot be
// decoded are yielded with a single illegal field.
func (op *DatabaseOp) Scan() iter.Seq[core.Record] {
	return func(yield func(core.Record) bool) {
		for id, data := range op.Persistence.Scan(nil) {
			if !yield(decodeOrIllegal(id, data)) {
				return
			}
		}
	}
}

// LatestTransaction describes the last commit of the database.
func (op *DatabaseOp) LatestTransaction() ps.Transaction {
	return op.Persistence.LatestTransaction()
}

func decodeOrIllegal(id int64, data []byte) core.Record {
	rec, err := ps.DecodeRecord(data)
	if err != nil {
		return core.Record{ID: id, Fields: []core.Value{{Type: core.IllegalType}}}
	}
	rec.ID = id
	return rec
}
