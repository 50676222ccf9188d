// Package registry implements tenant.Registry against the master device
// registry: a PostgREST endpoint, a Postgres database, or a local TOML file.
package registry
