package op

import (
	"context"
	"errors"
	"testing"

	"github.com/nickyhof/QueryGate/core"
)

func TestTraverseCount(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)

	out, err := dbop.Traverse(context.Background(), Query{
		Conds: []core.Condition{{Field: 1, Cond: core.Greater, Value: core.Int(28)}},
	}, Count, testIdentity)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if out.Matched != 2 {
		t.Errorf("Expected 2 matches, got %d", out.Matched)
	}
	if out.Records != nil {
		t.Error("Count should not collect records")
	}
}

func TestTraverseCollectPaging(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)

	out, err := dbop.Traverse(context.Background(), Query{From: 1, Limit: 1}, Collect, testIdentity)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].Fields[0].Str != "bob" {
		t.Errorf("Expected only bob, got %+v", out.Records)
	}
}

func TestTraverseByIDs(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)

	out, err := dbop.Traverse(context.Background(), Query{IDs: []int64{3, 42, 1, 3}}, Collect, testIdentity)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(out.Records) != 2 || out.Records[0].ID != 3 || out.Records[1].ID != 1 {
		t.Errorf("Expected records 3 and 1, got %+v", out.Records)
	}
}

func TestTraverseDelete(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)
	usedBefore := dbop.Database.Used

	out, err := dbop.Traverse(context.Background(), Query{
		Conds: []core.Condition{{Field: 0, Cond: core.Equal, Value: core.Str("bob")}},
	}, Delete, testIdentity)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if out.Matched != 1 || out.Transaction.Id == "" {
		t.Errorf("Unexpected outcome: %+v", out)
	}
	if len(dbop.Persistence.ListRecordKeys()) != 2 {
		t.Errorf("Expected 2 records left, got %d", len(dbop.Persistence.ListRecordKeys()))
	}
	if dbop.Database.Used >= usedBefore {
		t.Errorf("Expected used size to shrink from %d, got %d", usedBefore, dbop.Database.Used)
	}

	none, err := dbop.Traverse(context.Background(), Query{
		Conds: []core.Condition{{Field: 0, Cond: core.Equal, Value: core.Str("bob")}},
	}, Delete, testIdentity)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if none.Matched != 0 || none.Transaction.Id != "" {
		t.Errorf("Expected no commit for no matches, got %+v", none)
	}
}

func TestTraverseUpdate(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)

	out, err := dbop.Traverse(context.Background(), Query{
		Conds: []core.Condition{{Field: 0, Cond: core.Equal, Value: core.Str("alice")}},
		Set:   &Assignment{Field: 3, Value: core.Str("admin")},
	}, Update, testIdentity)
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if out.Matched != 1 {
		t.Errorf("Expected 1 match, got %d", out.Matched)
	}

	rec, err := dbop.Record(1)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	if len(rec.Fields) != 4 || !rec.Fields[2].IsNull() || rec.Fields[3].Str != "admin" {
		t.Errorf("Unexpected updated record: %+v", rec)
	}

	if _, err := dbop.Traverse(context.Background(), Query{}, Update, testIdentity); !errors.Is(err, ErrNoAssignment) {
		t.Errorf("Expected ErrNoAssignment, got %v", err)
	}
}

func TestTraverseUpdateDatabaseFull(t *testing.T) {
	dbop := setupTestDatabase(t, 120)
	insertTestData(t, dbop)

	_, err := dbop.Traverse(context.Background(), Query{
		Set: &Assignment{Field: 0, Value: core.Str("a much longer value than before")},
	}, Update, testIdentity)
	if !errors.Is(err, ErrDatabaseFull) {
		t.Fatalf("Expected ErrDatabaseFull, got %v", err)
	}
	rec, _ := dbop.Record(1)
	if rec.Fields[0].Str != "alice" {
		t.Errorf("Failed update changed the record: %+v", rec)
	}
}

func TestTraverseCancelled(t *testing.T) {
	dbop := setupTestDatabase(t, 10000)
	insertTestData(t, dbop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dbop.Traverse(ctx, Query{}, Count, testIdentity); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
