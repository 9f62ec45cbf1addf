// Package rules turns a queued domain event into candidate side effects.
//
// Build is pure: given an event and the lobby's directory it returns fully
// rendered DispatchOutputs, each carrying a deterministic dedupe key and the
// budget policy that applies to it. PickTopByChannel then reduces the
// candidates to at most one per channel.
//
// Handlers are registered in a lookup table keyed by domain.EventType. Every
// member of domain.AllEventTypes has an entry; a test enforces this.
package rules
