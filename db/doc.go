// Package db manages the databases served by QueryGate.
//
// A Registry resolves database names to repositories, creates and drops
// them, and hands out Handles. A Handle is obtained with Attach, which takes
// the database's read or write lock, and must be released with Detach:
//
//	h, err := registry.Attach(ctx, "1000", core.ReadLock)
//	if err != nil {
//	    return err
//	}
//	defer h.Detach()
//	out, err := h.Traverse(ctx, op.Query{}, op.Count, identity)
//
// Locks are per database. Readers share, writers are exclusive, and waiting
// is first come first served, so a queued writer holds back later readers.
// A lock that cannot be taken within the configured timeout fails with
// ErrLockTimeout.
//
// # Snapshots
//
// Handle.Snapshot streams all records as JSON lines to a local path, a
// file:// URL or an s3://bucket/key object.
package db
