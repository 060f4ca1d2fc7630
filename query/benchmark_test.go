package query

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/nickyhof/QueryGate/db"
)

// setupBenchmarkProcessor creates database 1000 holding 1000 records of
// the shape [id, "UserN", age, "CityN"].
func setupBenchmarkProcessor(b *testing.B) *Processor {
	p, err := NewProcessor(Options{Registry: db.NewRegistry(db.Options{})})
	if err != nil {
		b.Fatalf("Failed to create processor: %v", err)
	}
	slot := NewSlot(0)
	ctx := context.Background()
	if resp := p.Process(ctx, slot, Request{Method: "GET", Query: "op=create&db=1000"}); resp.Err != nil {
		b.Fatalf("create: %v", resp.Err)
	}
	for i := 1; i <= 1000; i++ {
		record := "[" + strconv.Itoa(i) + `,"User` + strconv.Itoa(i) + `",` +
			strconv.Itoa(20+i%50) + `,"City` + strconv.Itoa(i%10) + `"]`
		resp := p.Process(ctx, slot, Request{
			Method:      "POST",
			Query:       "op=insert&db=1000",
			Body:        []byte(record),
			ContentType: "application/json",
		})
		if resp.Err != nil {
			b.Fatalf("insert: %v", resp.Err)
		}
	}
	return p
}

func BenchmarkParseParams(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"SearchAll", "op=search&db=1000"},
		{"SearchWhere", "op=search&db=1000&field=2&cond=greater&type=int&value=30"},
		{"SearchTwoFields", "op=search&db=1000&field=2&cond=greater&value=25&field=3&cond=equal&value=City5&count=10"},
		{"Update", "op=update&db=1000&field=0&value=1&setfield=2&setvalue=30"},
		{"Escaped", "op=search&db=1000&field=1&value=User%201%26%3D&jsonp=cb"},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				params, err := ParseParams(q.query, MaxQueryLen)
				if err != nil {
					b.Fatalf("Parse error: %v", err)
				}
				if _, qerr := decode(params, false); qerr != nil {
					b.Fatalf("Decode error: %v", qerr)
				}
			}
		})
	}
}

func benchmarkQuery(b *testing.B, query string) {
	p := setupBenchmarkProcessor(b)
	slot := NewSlot(0)
	req := Request{Method: "GET", Query: query}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if resp := p.Process(context.Background(), slot, req); resp.Err != nil {
			b.Fatalf("Execute error: %v", resp.Err)
		}
	}
}

func BenchmarkSearchAll(b *testing.B) {
	benchmarkQuery(b, "op=search&db=1000")
}

func BenchmarkSearchWhere(b *testing.B) {
	benchmarkQuery(b, "op=search&db=1000&field=2&cond=greater&type=int&value=30")
}

func BenchmarkSearchCSV(b *testing.B) {
	benchmarkQuery(b, "op=search&db=1000&format=csv&showid=yes")
}

func BenchmarkCount(b *testing.B) {
	benchmarkQuery(b, "op=count&db=1000&field=3&cond=equal&type=str&value=City5")
}

func BenchmarkRecids(b *testing.B) {
	benchmarkQuery(b, "op=recids&db=1000&recids=1,500,1000")
}

func BenchmarkInsert(b *testing.B) {
	p := setupBenchmarkProcessor(b)
	slot := NewSlot(0)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		resp := p.Process(context.Background(), slot, Request{
			Method:      "POST",
			Query:       "op=insert&db=1000",
			Body:        []byte(`[0,"Bench",42,"City0"]`),
			ContentType: "application/json",
		})
		if resp.Err != nil {
			b.Fatalf("Insert error: %v", resp.Err)
		}
	}
}

// BenchmarkConcurrentSearch runs searches from parallel workers, each with
// its own slot.
func BenchmarkConcurrentSearch(b *testing.B) {
	p := setupBenchmarkProcessor(b)
	var next atomic.Int64
	req := Request{Method: "GET", Query: "op=search&db=1000&field=3&cond=equal&value=City1"}
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		slot := NewSlot(int(next.Add(1)))
		for pb.Next() {
			if resp := p.Process(context.Background(), slot, req); resp.Err != nil {
				b.Errorf("Execute error: %v", resp.Err)
				return
			}
		}
	})
}
