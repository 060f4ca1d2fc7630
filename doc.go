// Package QueryGate is a REST and CGI query gateway over git-backed record
// databases.
//
// Requests are plain query strings:
//
//	op=create&db=1000&size=1000000
//	op=insert&db=1000              (POST body ["Alice", 42, [1, 2]])
//	op=search&db=1000&field=1&cond=greater&type=int&value=40
//	op=count&db=1000&format=csv
//
// Results are JSON arrays or CSV rows. Every write is a git commit in the
// database's own repository, so the history of a database is its commit log.
//
// # Quick Start
//
//	inst, _ := QueryGate.Open(QueryGate.Options{})
//	slot := query.NewSlot(0)
//	resp := inst.Process(ctx, slot, query.Request{Query: "op=count&db=1000"})
//	fmt.Println(string(resp.Body))
//
// The cmd/server binary serves the same requests over HTTP(S) with a worker
// pool; cmd/cli answers one request from the command line or as a CGI
// program.
package QueryGate
