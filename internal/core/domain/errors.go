package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the core wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrIngestion indicates the corpus path is missing or unreadable.
	ErrIngestion = errors.New("ingestion error")

	// ErrRetrieval indicates an embedding or index computation failed.
	ErrRetrieval = errors.New("retrieval error")

	// ErrModelInvocation indicates a language model call failed.
	ErrModelInvocation = errors.New("model invocation error")

	// ErrPersistence indicates a ledger, vector or state write failed.
	ErrPersistence = errors.New("persistence error")

	// ErrSync indicates the message source failed during a sync batch.
	ErrSync = errors.New("sync error")
)

// Domain errors represent business logic failures.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrAuthRequired indicates the mailbox has no stored credentials.
	ErrAuthRequired = errors.New("authentication required")

	// ErrCursorExpired indicates the sync cursor is too old for the source.
	// The caller should fall back to a bounded window fetch.
	ErrCursorExpired = errors.New("sync cursor expired")
)

// Error carries an error kind together with the operation that failed.
type Error struct {
	// Kind is one of the ErrIngestion..ErrSync sentinels.
	Kind error

	// Op names the failing operation, e.g. "history.add_email".
	Op string

	Err error
}

// NewError wraps err with a kind and operation.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PipelineError reports the stage at which a pipeline run failed.
type PipelineError struct {
	Stage StageName
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
