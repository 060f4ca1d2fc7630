// Package encode renders query results into a per-request output buffer.
//
// A Buffer grows geometrically up to a hard cap and never shrinks while a
// request runs. An Encoder writes records as JSON arrays or CSV rows into a
// Buffer, resolving record references through a Resolver up to a maximum
// nesting depth.
package encode
