// Package access decides which operations a caller may run.
//
// Callers are placed in one of three tiers, admin > write > read, by their
// IP address, by a token from the tier's token list, or by a signed JWT
// carrying a "level" claim. A higher tier satisfies every lower requirement.
// With no IP or token lists and no JWT secret configured, everyone is admin.
// A configured database list limits non-admin operations to those databases.
package access
