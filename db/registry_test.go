package db

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/op"
)

func newTestRegistry(t *testing.T, baseDir string) *Registry {
	t.Helper()
	return NewRegistry(Options{
		BaseDir:     baseDir,
		MaxSize:     1000000,
		LockTimeout: 50 * time.Millisecond,
	})
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("1000"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("../etc"))
	assert.False(t, ValidName("abc"))
	assert.False(t, ValidName("123456789012345678901"))
}

func TestCreateAttachDrop(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")

	_, err := r.Attach(ctx, "1000", core.ReadLock)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Create(ctx, "1000", 5000))
	require.ErrorIs(t, r.Create(ctx, "1000", 5000), ErrExists)

	h, err := r.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	assert.Equal(t, "1000", h.Name())
	assert.Equal(t, int64(5000), h.Database().Size)
	h.Detach()

	require.NoError(t, r.Drop(ctx, "1000"))
	_, err = r.Attach(ctx, "1000", core.ReadLock)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Drop(ctx, "1000"), ErrNotFound)
}

func TestCreateSizeChecks(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")

	assert.ErrorIs(t, r.Create(ctx, "1", 0), ErrNoSize)
	assert.ErrorIs(t, r.Create(ctx, "1", 2000000), ErrTooBig)
	assert.ErrorIs(t, r.Create(ctx, "x", 10), ErrBadName)
	_, err := r.Attach(ctx, "", core.ReadLock)
	assert.ErrorIs(t, err, ErrBadName)
}

func TestAttachDetachCounts(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")
	require.NoError(t, r.Create(ctx, "1000", 5000))

	h, err := r.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	h.Detach()
	h.Detach()

	_, err = r.Attach(ctx, "2000", core.ReadLock)
	require.Error(t, err)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Attached)
	assert.Equal(t, stats.Attached, stats.Detached)
}

func TestReadersShareWritersExclude(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")
	require.NoError(t, r.Create(ctx, "1000", 5000))

	r1, err := r.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	r2, err := r.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)

	_, err = r.Attach(ctx, "1000", core.WriteLock)
	require.ErrorIs(t, err, ErrLockTimeout)

	r1.Detach()
	r2.Detach()

	w, err := r.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	_, err = r.Attach(ctx, "1000", core.ReadLock)
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, r.Create(ctx, "2000", 5000))
	other, err := r.Attach(ctx, "2000", core.WriteLock)
	require.NoError(t, err, "different databases never contend")
	other.Detach()
	w.Detach()
}

func TestWaitingWriterBlocksLaterReaders(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Options{LockTimeout: time.Second})
	require.NoError(t, r.Create(ctx, "1000", 5000))

	reader, err := r.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)

	writerDone := make(chan *Handle)
	go func() {
		w, err := r.Attach(ctx, "1000", core.WriteLock)
		if err != nil {
			writerDone <- nil
			return
		}
		writerDone <- w
	}()

	// Give the writer time to queue behind the reader.
	time.Sleep(50 * time.Millisecond)
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = r.Attach(shortCtx, "1000", core.ReadLock)
	require.ErrorIs(t, err, ErrLockTimeout)

	reader.Detach()
	w := <-writerDone
	require.NotNil(t, w)
	w.Detach()
}

func TestHandleReadOnly(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")
	require.NoError(t, r.Create(ctx, "1000", 5000))

	h, err := r.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	defer h.Detach()

	_, _, err = h.Insert([]op.Field{op.Scalar(core.Int(1))}, r.Identity())
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = h.Traverse(ctx, op.Query{}, op.Delete, r.Identity())
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFileRegistrySharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newTestRegistry(t, dir)
	require.NoError(t, first.Create(ctx, "1000", 5000))
	h, err := first.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	id, _, err := h.Insert([]op.Field{op.Scalar(core.Str("kept"))}, first.Identity())
	require.NoError(t, err)
	h.Detach()

	second := newTestRegistry(t, dir)
	h, err = second.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	rec, err := h.Record(id)
	require.NoError(t, err)
	assert.Equal(t, "kept", rec.Fields[0].Str)
	h.Detach()

	require.NoError(t, second.Drop(ctx, "1000"))
	assert.NoDirExists(t, filepath.Join(dir, "1000"))
}

func TestDatabaseFullIsExported(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, "")
	require.NoError(t, r.Create(ctx, "1000", 20))

	h, err := r.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	defer h.Detach()
	_, _, err = h.Insert([]op.Field{op.Scalar(core.Str("too large"))}, r.Identity())
	assert.True(t, errors.Is(err, ErrDatabaseFull))
}

func TestWriteLockSharedWithOtherRegistries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := newTestRegistry(t, dir)
	second := newTestRegistry(t, dir)
	require.NoError(t, first.Create(ctx, "1000", 5000))

	r1, err := first.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	r2, err := second.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err, "readers share across registries")
	_, err = second.Attach(ctx, "1000", core.WriteLock)
	require.ErrorIs(t, err, ErrLockTimeout)
	r1.Detach()
	r2.Detach()

	w, err := first.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	_, err = second.Attach(ctx, "1000", core.WriteLock)
	require.ErrorIs(t, err, ErrLockTimeout)
	_, err = second.Attach(ctx, "1000", core.ReadLock)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.ErrorIs(t, second.Drop(ctx, "1000"), ErrLockTimeout)

	id, _, err := w.Insert([]op.Field{op.Scalar(core.Str("first"))}, first.Identity())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	w.Detach()

	w, err = second.Attach(ctx, "1000", core.WriteLock)
	require.NoError(t, err)
	id, _, err = w.Insert([]op.Field{op.Scalar(core.Str("second"))}, second.Identity())
	require.NoError(t, err)
	assert.Equal(t, int64(2), id, "the id counter is read after locking")
	w.Detach()

	h, err := first.Attach(ctx, "1000", core.ReadLock)
	require.NoError(t, err)
	defer h.Detach()
	out, err := h.Traverse(ctx, op.Query{}, op.Collect, first.Identity())
	require.NoError(t, err)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "first", out.Records[0].Fields[0].Str)
	assert.Equal(t, "second", out.Records[1].Fields[0].Str)
}

func TestMissingDatabasesLeaveNoEntries(t *testing.T) {
	ctx := context.Background()
	for _, baseDir := range []string{"", t.TempDir()} {
		r := newTestRegistry(t, baseDir)
		for i := range 100 {
			_, err := r.Attach(ctx, strconv.Itoa(5000+i), core.ReadLock)
			require.ErrorIs(t, err, ErrNotFound)
		}
		assert.Empty(t, r.entries)

		require.NoError(t, r.Create(ctx, "1000", 5000))
		h, err := r.Attach(ctx, "1000", core.WriteLock)
		require.NoError(t, err)
		h.Detach()
		require.NoError(t, r.Drop(ctx, "1000"))
		assert.Empty(t, r.entries)

		if baseDir != "" {
			matches, err := filepath.Glob(filepath.Join(baseDir, ".5*.lock"))
			require.NoError(t, err)
			assert.Empty(t, matches, "lookups of missing databases create no lock files")
		}
	}
}
