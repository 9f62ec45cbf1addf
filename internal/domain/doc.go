// Package domain defines the types shared by every stage of the commentary
// pipeline: queued events and their typed payloads, the candidate outputs
// produced by rules, and the records written to the audit log.
//
// # Event Types
//
// EventType is a closed enumeration. Each value has exactly one payload
// struct (see payload.go) and one CUE schema definition (see schema.cue).
// AllEventTypes lists the enumeration in declaration order; tests in this
// package and in the rules package assert that every value is covered by a
// decoder, a schema and a rule handler.
//
// # Keys
//
// Dedupe keys and idempotency keys are compared byte-for-byte by the store.
// NormalizeKey applies Unicode NFC normalisation so visually identical keys
// produced by different clients collapse onto the same claim.
package domain
