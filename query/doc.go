// Package query runs gateway requests end to end.
//
// A request moves through the states Received, Parsed, Authorized, Attached,
// Executed and Encoded before it is Done. Any state may end in Failed. The
// processor keeps its per-request data in a Slot owned by the calling worker,
// so one Processor serves any number of workers concurrently. A database
// handle attached for a request is detached exactly once on every path.
package query
