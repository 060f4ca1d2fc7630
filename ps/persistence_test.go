package ps

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nickyhof/QueryGate/core"
)

func TestNewMemoryPersistence(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create memory persistence: %v", err)
	}

	if !persistence.IsInitialized() {
		t.Error("Expected persistence to be initialized")
	}
	if persistence.Dir() != "" {
		t.Errorf("Expected no directory in memory mode, got %q", persistence.Dir())
	}
}

func TestPersistenceNotInitialized(t *testing.T) {
	var persistence Persistence

	if persistence.IsInitialized() {
		t.Error("Expected uninitialized persistence to return false")
	}

	err := persistence.ensureInitialized()
	if err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestCreateAndGetDatabase(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	identity := core.Identity{Name: "test", Email: "test@test.com"}
	db := core.Database{Name: "testdb", Size: 1000, NextID: 1}

	txn, err := persistence.CreateDatabase(db, identity)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if txn.Id == "" {
		t.Error("Expected transaction ID to be set")
	}

	gotDB, err := persistence.GetDatabase()
	if err != nil {
		t.Fatalf("Failed to get database: %v", err)
	}
	if gotDB.Name != "testdb" || gotDB.Size != 1000 || gotDB.NextID != 1 {
		t.Errorf("Unexpected database description: %+v", gotDB)
	}
}

func TestGetDatabaseEmptyRepository(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if _, err := persistence.GetDatabase(); err == nil {
		t.Error("Expected error for repository without a database")
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	identity := core.Identity{Name: "test", Email: "test@test.com"}
	rec := core.Record{ID: 7, Fields: []core.Value{core.Str("Ann"), core.Int(42)}}

	txn, err := persistence.NewBatch()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	if err := txn.PutRecord(rec); err != nil {
		t.Fatalf("Failed to queue record: %v", err)
	}
	if _, err := txn.Commit(identity, "Inserting record"); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	data, exists := persistence.GetRecord(7)
	if !exists {
		t.Fatal("Expected record to exist")
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("Failed to decode record: %v", err)
	}
	if got.ID != 7 || len(got.Fields) != 2 || got.Fields[0].Str != "Ann" || got.Fields[1].Int != 42 {
		t.Errorf("Unexpected record: %+v", got)
	}

	if _, exists := persistence.GetRecord(8); exists {
		t.Error("Expected record 8 to be missing")
	}
}

func TestScanInIDOrder(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	identity := core.Identity{Name: "test", Email: "test@test.com"}
	txn, _ := persistence.NewBatch()
	for _, id := range []int64{12, 3, 100, 1} {
		if err := txn.PutRecord(core.Record{ID: id, Fields: []core.Value{core.Int(id)}}); err != nil {
			t.Fatalf("Failed to queue record: %v", err)
		}
	}
	if _, err := txn.Commit(identity, ""); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	var ids []int64
	for id, data := range persistence.Scan(nil) {
		rec, err := DecodeRecord(data)
		if err != nil {
			t.Fatalf("Failed to decode record %d: %v", id, err)
		}
		if rec.Fields[0].Int != id {
			t.Errorf("Record %d holds %d", id, rec.Fields[0].Int)
		}
		ids = append(ids, id)
	}

	want := []int64{1, 3, 12, 100}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
			break
		}
	}

	keys := persistence.ListRecordKeys()
	if len(keys) != 4 || keys[0] != 1 || keys[3] != 100 {
		t.Errorf("Unexpected keys: %v", keys)
	}
}

func TestScanWithFilter(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	identity := core.Identity{Name: "test", Email: "test@test.com"}
	txn, _ := persistence.NewBatch()
	for id := int64(1); id <= 5; id++ {
		txn.PutRecord(core.Record{ID: id, Fields: []core.Value{core.Int(id)}})
	}
	txn.Commit(identity, "")

	count := 0
	for id := range persistence.Scan(func(id int64) bool { return id%2 == 0 }) {
		if id%2 != 0 {
			t.Errorf("Filter let %d through", id)
		}
		count++
	}
	if count != 2 {
		t.Errorf("Expected 2 records, got %d", count)
	}
}

func TestScanEmptyRepository(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	for id := range persistence.Scan(nil) {
		t.Errorf("Unexpected record %d", id)
	}
}

func TestFilePersistenceReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "1000")
	identity := core.Identity{Name: "test", Email: "test@test.com"}

	if _, err := OpenFilePersistence(dir); !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("Expected ErrRepoNotFound, got %v", err)
	}

	persistence, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	if _, err := persistence.CreateDatabase(core.Database{Name: "1000", Size: 50}, identity); err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	txn, _ := persistence.NewBatch()
	txn.PutRecord(core.Record{ID: 1, Fields: []core.Value{core.Str("persisted")}})
	if _, err := txn.Commit(identity, ""); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	reopened, err := OpenFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	gotDB, err := reopened.GetDatabase()
	if err != nil {
		t.Fatalf("Failed to get database: %v", err)
	}
	if gotDB.Size != 50 {
		t.Errorf("Expected size 50, got %d", gotDB.Size)
	}
	data, exists := reopened.GetRecord(1)
	if !exists {
		t.Fatal("Expected record to survive reopen")
	}
	rec, _ := DecodeRecord(data)
	if rec.Fields[0].Str != "persisted" {
		t.Errorf("Unexpected field %q", rec.Fields[0].Str)
	}

	if err := reopened.Destroy(); err != nil {
		t.Fatalf("Failed to destroy: %v", err)
	}
	if _, err := OpenFilePersistence(dir); !errors.Is(err, ErrRepoNotFound) {
		t.Errorf("Expected ErrRepoNotFound after destroy, got %v", err)
	}
}

func TestLatestTransaction(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if txn := persistence.LatestTransaction(); txn.Id != "" {
		t.Errorf("Expected empty transaction, got %s", txn)
	}

	identity := core.Identity{Name: "Ann", Email: "ann@example.com"}
	created, err := persistence.CreateDatabase(core.Database{Name: "db"}, identity)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	latest := persistence.LatestTransaction()
	if latest.Id != created.Id {
		t.Errorf("Expected %s, got %s", created.Id, latest.Id)
	}
	if latest.Author != "Ann <ann@example.com>" {
		t.Errorf("Unexpected author %q", latest.Author)
	}
}
