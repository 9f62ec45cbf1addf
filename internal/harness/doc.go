// Package harness runs scripted pipeline scenarios for regression testing.
//
// A scenario seeds one lobby directory, then drives the real pipeline over an
// in-memory SQLite store through a list of steps: enqueueing events,
// processing the queue, moving a fake clock, breaking and restoring the push
// transport, abandoning claims mid-flight, recovering stale claims and
// requeueing dead events. Afterwards
// it captures every event with its audit trail, every comment and every push,
// and evaluates the scenario's assertions against that capture.
//
// # Scenario Format
//
//	name: push_outage
//	description: "A failed push is retried but never delivered twice"
//	lobby:
//	  id: L1
//	  name: Iron Temple
//	  members:
//	    - { player: p1, name: Ana, user: u-ana }
//	steps:
//	  - fail_push: "transport down"
//	  - enqueue: { type: SPIN_RESOLVED, key: S1, payload: { spinId: S1, playerId: p1, outcome: squats } }
//	  - process: { expect: { failed: 1 } }
//	  - restore_push: true
//	  - advance: 30s
//	  - process: {}
//	assertions:
//	  - { type: event_status, event: S1, status: done, attempts: 2 }
//	  - { type: push_count, count: 0 }
//
// Exactly one action may be set per step. Events are referred to by their
// key.
//
// # Assertion Types
//
//   - event_status: the event's final status and, optionally, attempt count
//   - decision_count: how many audit rows a rule wrote with a decision
//   - decision_order: "rule:decision" pairs appear in this order in the audit log
//   - comment_count: comments written, optionally filtered by visibility
//   - comment_contains: some comment body contains the given text
//   - push_count: pushes delivered, optionally filtered by mode
//
// # Determinism
//
// Scenarios run on a fake clock starting at the scenario's start instant and
// use zero-padded sequential IDs, so the rendered capture is byte-stable and
// can be compared against golden files with RunWithGolden.
package harness
