// Package sink writes decoded AVL records into a tenant's own store.
//
// The tenant route's sink endpoint picks the transport: http(s) endpoints
// receive a PostgREST bulk insert, postgres endpoints receive a COPY into the
// telemetry table over a pooled connection.
package sink
