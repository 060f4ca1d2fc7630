// Package ps provides the persistence layer for QueryGate databases.
//
// Every database lives in its own Git repository, driven through go-git's
// plumbing API without a worktree. Each write batch becomes one commit, so
// the history of a database can be inspected with ordinary Git tooling when
// file persistence is used.
//
// # Layout
//
// A repository holds a single "database.meta" blob with the database
// description and one blob per record below "records/". Record keys are
// zero padded so that tree order equals id order.
//
// # Memory Persistence
//
// For testing or ephemeral databases:
//
//	persistence, err := ps.NewMemoryPersistence()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For databases shared between processes (CGI, command line):
//
//	persistence, err := ps.NewFilePersistence("/var/lib/querygate/1000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Batches
//
// Writes touching several records are collected into one commit:
//
//	b, _ := persistence.NewBatch()
//	b.PutRecord(rec)
//	b.RemoveRecord(2)
//	b.PutDatabase(database)
//	txn, _ := b.Commit(identity, "Updating records")
package ps
