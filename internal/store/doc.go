// Package store holds the Player Record Store: the durable mapping from
// identity to accumulated knowledge that doubles as the crawl frontier.
//
// # Persistence
//
// The whole store is written as one JSON object keyed by identity. Writes go
// to a temporary file in the same directory followed by a rename, so a crash
// leaves either the previous snapshot or the new one on disk, never a
// truncated file.
//
// # Invariants
//
//   - a record exists for every identity ever referenced
//   - crawled is monotonic
//   - ownership changes only while the profile is public
//
// The store enforces the last two itself; callers cannot bypass them.
package store
