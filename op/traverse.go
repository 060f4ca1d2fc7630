package op

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/ps"
)

const (
	MaxCount = 100000 // matches processed by one traversal
	MaxIDs   = 1000   // record ids honoured in one id search
)

var ErrNoAssignment = errors.New("no field to set given")

// Strategy selects what Traverse does with each matching record.
type Strategy int

const (
	Count Strategy = iota
	Collect
	Delete
	Update
)

func (s Strategy) String() string {
	switch s {
	case Count:
		return "count"
	case Collect:
		return "collect"
	case Delete:
		return "delete"
	case Update:
		return "update"
	}
	return "unknown"
}

// Writes reports whether the strategy modifies the database.
func (s Strategy) Writes() bool {
	return s == Delete || s == Update
}

// Assignment sets one field of every updated record.
type Assignment struct {
	Field int
	Value core.Value
}

type Query struct {
	Conds []core.Condition
	IDs   []int64 // when set, only these records are visited, in this order
	From  int     // matches to skip
	Limit int     // matches to process; <= 0 means MaxCount
	Set   *Assignment
}

type Outcome struct {
	Matched     int
	Records     []core.Record // Collect only
	Transaction ps.Transaction
}

// Traverse visits the records selected by q and applies strategy to each
// match. Delete and Update commit all their changes at once after the walk.
func (op *DatabaseOp) Traverse(ctx context.Context, q Query, strategy Strategy, identity core.Identity) (Outcome, error) {
	if strategy == Update && (q.Set == nil || q.Set.Field < 0) {
		return Outcome{}, ErrNoAssignment
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxCount {
		limit = MaxCount
	}

	var batch *ps.Batch
	if strategy.Writes() {
		var err error
		if batch, err = op.Persistence.NewBatch(); err != nil {
			return Outcome{}, err
		}
	}
	database := op.Database

	var out Outcome
	skipped := 0
	visit := func(rec core.Record) (bool, error) {
		if !core.MatchAll(q.Conds, rec) {
			return true, nil
		}
		if skipped < q.From {
			skipped++
			return true, nil
		}

		switch strategy {
		case Collect:
			out.Records = append(out.Records, rec)
		case Delete:
			if err := batch.RemoveRecord(rec.ID); err != nil {
				return false, err
			}
			database.Used -= rec.Size()
		case Update:
			updated := assign(rec, *q.Set)
			database.Used += updated.Size() - rec.Size()
			if database.Used > database.Size {
				return false, ErrDatabaseFull
			}
			if err := batch.PutRecord(updated); err != nil {
				return false, err
			}
		}
		out.Matched++
		return out.Matched < limit, nil
	}

	err := op.walk(ctx, q, visit)
	if err != nil || !strategy.Writes() {
		if batch != nil {
			batch.Discard()
		}
		if err != nil {
			return Outcome{}, err
		}
		return out, nil
	}

	if out.Matched == 0 {
		batch.Discard()
		return out, nil
	}
	if database.Used < 0 {
		database.Used = 0
	}
	if err := batch.PutDatabase(database); err != nil {
		batch.Discard()
		return Outcome{}, err
	}
	out.Transaction, err = batch.Commit(identity, fmt.Sprintf("%s: %d record(s)", strategy, out.Matched))
	if err != nil {
		return Outcome{}, err
	}
	op.Database = database
	return out, nil
}

// walk feeds the candidate records to visit until it asks to stop.
func (op *DatabaseOp) walk(ctx context.Context, q Query, visit func(core.Record) (bool, error)) error {
	step := func(i int, rec core.Record) (bool, error) {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		return visit(rec)
	}

	if len(q.IDs) > 0 {
		ids := q.IDs
		if len(ids) > MaxIDs {
			ids = ids[:MaxIDs]
		}
		seen := make(map[int64]struct{}, len(ids))
		for i, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			data, exists := op.Persistence.GetRecord(id)
			if !exists {
				continue
			}
			more, err := step(i, decodeOrIllegal(id, data))
			if err != nil || !more {
				return err
			}
		}
		return nil
	}

	i := 0
	for rec := range op.Scan() {
		more, err := step(i, rec)
		if err != nil || !more {
			return err
		}
		i++
	}
	return nil
}

// assign returns a copy of rec with the assignment applied. Records that are
// too short are padded with nulls.
func assign(rec core.Record, set Assignment) core.Record {
	n := len(rec.Fields)
	if set.Field >= n {
		n = set.Field + 1
	}
	fields := make([]core.Value, n)
	copy(fields, rec.Fields)
	for i := len(rec.Fields); i < n; i++ {
		fields[i] = core.Null()
	}
	fields[set.Field] = set.Value
	return core.Record{ID: rec.ID, Fields: fields}
}
