// Package op implements the record operations of a single QueryGate database.
//
// A DatabaseOp pairs the database description with its persistence layer.
// Inserts stage nested records and the updated description into one commit.
// Search, count, delete and update all run through Traverse, which walks the
// records once and applies a Strategy to every match:
//
//	out, err := dbop.Traverse(ctx, op.Query{
//	    Conds: []core.Condition{{Field: 0, Cond: core.Equal, Value: core.Int(5)}},
//	}, op.Collect, identity)
//
// Size accounting follows the stored record sizes: an insert or update that
// would take the database past its size fails with ErrDatabaseFull and
// leaves the database unchanged.
package op
