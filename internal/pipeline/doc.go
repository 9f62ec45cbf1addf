// Package pipeline ties the queue, rule engine, budgets and dispatcher into
// the commentary pipeline.
//
// Producers call Enqueue for every domain event. Any number of callers (an
// inline call after a request, a scheduled sweep, another replica) may run
// ProcessQueue concurrently against one store. Two store primitives make that
// safe:
//
//   - the conditional claim on the events table gives each event a single
//     owner at a time
//   - the insert-or-ignore on the dedupe ledger lets each (rule, channel,
//     dedupe key) side effect happen at most once
//
// Budgets are deliberately not linearized. See package budget.
//
// Event lifecycle:
//
//	queued|failed --claim--> processing --> done
//	                                   \--> failed (retry after Backoff)
//	                                   \--> dead (attempts exhausted, or payload undecodable)
package pipeline
