package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nickyhof/QueryGate/core"
)

type snapshotField struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

type snapshotLine struct {
	ID     int64           `json:"id"`
	Fields []snapshotField `json:"fields"`
}

// SnapshotResult describes a finished snapshot.
type SnapshotResult struct {
	Records int
	Bytes   int64
	Commit  string
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Snapshot writes every record of the database to dest, one JSON object per
// line.
func (h *Handle) Snapshot(ctx context.Context, dest string) (SnapshotResult, error) {
	w, err := openDestination(ctx, dest, &h.registry.opts.S3)
	if err != nil {
		return SnapshotResult{}, err
	}

	cw := &countingWriter{w: bufio.NewWriter(w)}
	enc := json.NewEncoder(cw)
	res := SnapshotResult{Commit: h.dbop.LatestTransaction().Id}
	for rec := range h.dbop.Scan() {
		if err := ctx.Err(); err != nil {
			w.Close()
			return SnapshotResult{}, err
		}
		if err := enc.Encode(toSnapshotLine(rec)); err != nil {
			w.Close()
			return SnapshotResult{}, fmt.Errorf("failed to write record %d: %w", rec.ID, err)
		}
		res.Records++
	}

	if err := cw.w.Flush(); err != nil {
		w.Close()
		return SnapshotResult{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return SnapshotResult{}, err
	}
	res.Bytes = cw.n
	h.registry.logger.Info("db.snapshot", "db", h.Name(), "dest", dest, "records", res.Records)
	return res, nil
}

func toSnapshotLine(rec core.Record) snapshotLine {
	line := snapshotLine{ID: rec.ID, Fields: make([]snapshotField, len(rec.Fields))}
	for i, v := range rec.Fields {
		f := snapshotField{Type: v.Type.String()}
		switch v.Type {
		case core.IntType, core.RecordType:
			f.Value = v.Int
		case core.DoubleType:
			f.Value = v.Double
		case core.StrType, core.CharType, core.BlobType:
			f.Value = v.Str
		}
		line.Fields[i] = f
	}
	return line
}
