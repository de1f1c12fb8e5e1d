// Package store is the in-memory cache and mutation engine of the tag store.
//
// # Overview
//
// A Store holds the live working copy of every tag, tag color and project
// record for one running instance. Reads never touch the transport. Writes go
// to the transport first and update the cache only after the transport
// confirms them, so a failed write leaves the cache consistent with durable
// state.
//
// Several Stores may share one transport (several browser tabs, several
// processes on one SQLite file). Each keeps its cache current by applying
// the transport's change notifications; the result is eventually consistent,
// not linearizable. Two writers racing on the same shard or project lose one
// update.
//
// # Lifecycle
//
//	s := store.New(transport)
//	if err := s.Initialize(ctx); err != nil { ... }   // load + migrate
//	sub := s.Subscribe(func(ev store.Event) { ... })  // refresh hooks
//	defer sub.Unsubscribe()
//
//	err := s.AddTag(ctx, "p1", "AI/ML")               // creates AI and AI/ML
//	err = s.Merge(ctx, "AI/ML", "Research/ML")
//	removed, err := s.RemoveTagAndDescendants(ctx, "Draft")
//
// # Errors
//
// Mutations distinguish "nothing to do" from failure. ErrNoChange and
// ErrAlreadyExists mean the store is already in the requested state (see
// IsNoop); ErrNotFound means a stale project or tag reference; transport
// failures wrap kv.ErrRead or kv.ErrWrite. Multi-step operations do not roll
// back completed steps; re-running the same operation finishes the job.
package store
