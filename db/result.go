package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/nickyhof/QueryGate/ps"
)

// Result summarizes one executed operation for the request log.
type Result struct {
	Op          string
	Database    string
	Transaction ps.Transaction
	Read        int
	Written     int
	Deleted     int
	Elapsed     time.Duration
}

func roundElapsed(d time.Duration) time.Duration {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond)
	case d < time.Second:
		return d.Round(100 * time.Microsecond)
	}
	return d.Round(time.Millisecond)
}

// Summary renders the result as "op: n read, m written in 1.2ms".
func (r Result) Summary() string {
	var counts []string
	for _, c := range []struct {
		n    int
		verb string
	}{{r.Read, "read"}, {r.Written, "written"}, {r.Deleted, "deleted"}} {
		if c.n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", c.n, c.verb))
		}
	}
	if len(counts) == 0 {
		counts = append(counts, "ok")
	}
	return fmt.Sprintf("%s: %s in %s", r.Op, strings.Join(counts, ", "), roundElapsed(r.Elapsed))
}
