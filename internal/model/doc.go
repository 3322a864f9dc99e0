// Package model defines the records the crawler accumulates about platform
// identities: profile visibility, target-app ownership and crawl progress.
//
// Visibility and ownership are explicit enumerations rather than nullable
// booleans. Both encode to lowercase strings in snapshots.
package model
