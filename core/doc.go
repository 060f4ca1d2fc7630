// Package core provides core types used throughout QueryGate.
//
// The package defines the record model served by the gateway (values,
// records, comparison conditions), the access levels checked before a
// database is touched, and the output format and escape settings.
//
// # Identity
//
// Identity identifies the author of write batches (Git commit author):
//
//	identity := core.Identity{
//	    Name:  "QueryGate",
//	    Email: "gateway@querygate.local",
//	}
//
// # Field Types
//
// Supported field types:
//   - NullType: the absent value
//   - IntType: 64 bit integers
//   - DoubleType: 64 bit floats
//   - StrType: strings
//   - CharType: a single character
//   - RecordType: a reference to another record in the same database
//   - BlobType: opaque bytes, rendered like strings
//
// # Records
//
// A record is an ordered list of field values with a database-assigned id:
//
//	rec := core.Record{
//	    ID: 7,
//	    Fields: []core.Value{
//	        core.Str("alice"),
//	        core.Int(30),
//	        core.Ref(3),
//	    },
//	}
package core
