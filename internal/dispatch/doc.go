// Package dispatch performs the side effect of a chosen rule output exactly
// once.
//
// Dispatch first inserts a permanent claim ticket into the dedupe ledger. Only
// the caller whose insert succeeds performs the effect: appending a comment,
// or sending a push to one user or to a whole lobby. A lost insert means the
// effect already happened (or is happening) elsewhere and is reported as a
// duplicate.
//
// The claim commits before the effect runs. A crash or sink failure between
// the two leaves a claim with no effect; retries then see a duplicate and the
// effect is lost. This trades an occasional missing narration for never
// narrating twice.
package dispatch
