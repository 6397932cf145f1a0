// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - CorpusLoader: Reads knowledge base documents
//   - PostProcessor: Splits documents into chunks
//   - EmbeddingService: Dense vectors for chunks, queries and email bodies
//   - LLMService: Language model calls for every pipeline stage
//   - EmailLedger: History records and their vectors, written together
//   - IndexSnapshotStore: On-disk retrieval index
//   - WatermarkStore, ProcessedStore: Polling state that survives restarts
//   - MessageSource, DraftSink: The mailbox
//
// # Optional Interfaces
//
//   - PromptStore: User-editable prompt templates; defaults are embedded
//   - RunStore: Polling cycle history
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
