// Package database exports a player store to SQLite.
//
// The JSON snapshot stays the source of truth for the crawl. The database
// is a queryable copy: a players table upserted from the store and a runs
// table that records every crawl or export with its outcome.
//
// The driver is modernc.org/sqlite, a CGO-free build of SQLite; the pool
// is limited to one connection because SQLite has a single writer.
package database
