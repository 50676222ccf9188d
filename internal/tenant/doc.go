// Package tenant resolves tracker identities to per-customer destinations.
//
// Ownership boundary:
// - Route construction from registry rows
// - time-bounded route cache shared by all sessions
// - delegation of record batches to the tenant sink
package tenant
