// Package domain defines the core entities for triage.
//
// This package is the innermost layer of the hexagon. It has NO external
// dependencies and defines the fundamental types:
//
//   - Chunk: a window of corpus text, the unit of knowledge retrieval
//   - EmailRecord: a past message held in the history ledger
//   - VectorEntry: the embedding paired 1:1 with an EmailRecord
//   - Message: an incoming message handed to the response pipeline
//   - Settings: the typed application configuration
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
