package ps

import (
	"fmt"
	"iter"
	"strconv"

	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nickyhof/QueryGate/core"
)

const (
	MetaPath   = "database.meta"
	RecordsDir = "records"
)

// RecordPath returns the tree path of the record with the given id.
func RecordPath(id int64) string {
	return fmt.Sprintf("%s/%012d", RecordsDir, id)
}

func parseRecordKey(name string) (int64, bool) {
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// CreateDatabase writes the description of a new database as the first
// commit.
func (persistence *Persistence) CreateDatabase(database core.Database, identity core.Identity) (Transaction, error) {
	b, err := persistence.NewBatch()
	if err != nil {
		return Transaction{}, err
	}
	if err := b.PutDatabase(database); err != nil {
		return Transaction{}, err
	}
	return b.Commit(identity, "Creating database "+database.Name)
}

func (persistence *Persistence) GetDatabase() (*core.Database, error) {
	data, err := persistence.readFile(MetaPath)
	if err != nil {
		return nil, fmt.Errorf("database does not exist: %w", err)
	}
	var d core.Database
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal database: %w", err)
	}
	return &d, nil
}

// GetRecord returns the stored bytes of a single record.
func (persistence *Persistence) GetRecord(id int64) ([]byte, bool) {
	data, err := persistence.readFile(RecordPath(id))
	if err != nil {
		return nil, false
	}
	return data, true
}

// ListRecordKeys returns the ids of all stored records in ascending order.
func (persistence *Persistence) ListRecordKeys() []int64 {
	records, err := persistence.recordsTree()
	if err != nil || records == nil {
		return nil
	}
	var keys []int64
	for _, entry := range records.Entries {
		if entry.Mode == filemode.Dir {
			continue
		}
		if id, ok := parseRecordKey(entry.Name); ok {
			keys = append(keys, id)
		}
	}
	return keys
}

// Scan iterates over the stored records in id order. The records tree is
// resolved once, so a scan sees a consistent commit even if writes land
// meanwhile. A nil filter accepts every id; rejected records are not read.
func (persistence *Persistence) Scan(filter func(id int64) bool) iter.Seq2[int64, []byte] {
	return func(yield func(id int64, value []byte) bool) {
		records, err := persistence.recordsTree()
		if err != nil || records == nil {
			return
		}
		for _, entry := range records.Entries {
			if entry.Mode == filemode.Dir {
				continue
			}
			id, ok := parseRecordKey(entry.Name)
			if !ok || filter != nil && !filter(id) {
				continue
			}
			value, err := persistence.readBlob(entry.Hash)
			if err != nil {
				value = nil
			}
			if !yield(id, value) {
				return
			}
		}
	}
}
