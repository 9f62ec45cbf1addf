// Package store provides SQLite-backed durable storage for the commentary
// pipeline.
//
// The store holds three pipeline collections and two supporting tables:
//   - events: the queue, one row per (lobby_id, type, event_key)
//   - dispatch_dedupe: permanent claim tickets, one per emitted side effect
//   - rule_runs: append-only audit of every candidate output decision
//   - comments: the narrative comment sink counted by feed budgets
//   - lobbies / lobby_members: the name and identity directory
//
// # Atomic Primitives
//
// Two statements act as distributed mutexes and are the only source of
// concurrency safety in the pipeline:
//
//   - ClaimEvent is a conditional UPDATE … RETURNING. Zero rows means another
//     processor owns the event (or it is not yet eligible).
//   - ClaimDispatch is INSERT … ON CONFLICT DO NOTHING. One affected row is the
//     only authorisation to perform the side effect.
//
// # Time
//
// Timestamps are stored as INTEGER Unix milliseconds in UTC so eligibility and
// budget windows compare numerically.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Missing tables and closed connections are reported wrapped in
// ErrUnavailable so callers can degrade instead of failing.
package store
