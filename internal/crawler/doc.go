// Package crawler drives the friends-graph crawl.
//
// An Engine owns one run of the state machine:
//
//	Idle -> ResolvingVisibility -> Selecting -> Expanding -> ResolvingNew
//	     -> Checkpointing -> Selecting ... -> Done | Aborted
//
// The store itself is the frontier: the engine keeps no queue and no
// identity state of its own, so a run can be interrupted at any point and
// resumed from the last snapshot. Whatever happens, Run writes one final
// snapshot before it returns.
//
// Usage:
//
//	st := store.Load(path)
//	gw := steamapi.New(apiKey)
//	eng := crawler.New(st, gw, resolver.New(gw, st), path, crawler.WithSeed(seed))
//	summary, err := eng.Run(ctx)
package crawler
