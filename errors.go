package ragforge

import "fmt"

// ValidationError signals input that violates a precondition: a bad file
// path, an unknown configuration key. Surfaced synchronously, never
// retried (§7).
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// DetectionError signals that format/type detection failed
// catastrophically (not merely "unknown"). Ingestion aborts with
// status=failed (§7).
type DetectionError struct {
	SourceID string
	Message  string
	Err      error
}

func (e *DetectionError) Error() string {
	msg := fmt.Sprintf("detection[%s]: %s", e.SourceID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *DetectionError) Unwrap() error { return e.Err }

func NewDetectionError(sourceID, message string, err error) *DetectionError {
	return &DetectionError{SourceID: sourceID, Message: message, Err: err}
}

// ExtractionError signals that a FormatReader failed to extract text.
// Ingestion aborts with status=failed; the source is recorded with the
// error (§7).
type ExtractionError struct {
	SourceID string
	Format   Format
	Message  string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction[%s/%s]: %s", e.SourceID, e.Format, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(sourceID string, format Format, message string, err error) *ExtractionError {
	return &ExtractionError{SourceID: sourceID, Format: format, Message: message, Err: err}
}

// ProviderErrorClass is the embedding provider's retry-friendly error
// taxonomy (§4.4).
type ProviderErrorClass string

const (
	ProviderTransient    ProviderErrorClass = "transient"
	ProviderRateLimited  ProviderErrorClass = "rate_limited"
	ProviderInvalidInput ProviderErrorClass = "invalid_input"
	ProviderFatal        ProviderErrorClass = "fatal"
)

// TransientProviderError signals a retryable embedding provider failure
// (timeout, rate limit). Retried with backoff; exhaustion promotes to
// FatalProviderError (§7).
type TransientProviderError struct {
	Class   ProviderErrorClass // ProviderTransient or ProviderRateLimited
	Attempt int
	Message string
	Err     error
}

func (e *TransientProviderError) Error() string {
	msg := fmt.Sprintf("embedding provider[%s] attempt %d: %s", e.Class, e.Attempt, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

func NewTransientProviderError(class ProviderErrorClass, attempt int, message string, err error) *TransientProviderError {
	return &TransientProviderError{Class: class, Attempt: attempt, Message: message, Err: err}
}

// FatalProviderError signals a non-retryable embedding provider failure.
// The affected chunk loses that embedding kind; the chunk is rejected
// only if every kind has failed (§7).
type FatalProviderError struct {
	Kind    EmbeddingKind
	Message string
	Err     error
}

func (e *FatalProviderError) Error() string {
	msg := fmt.Sprintf("embedding provider[%s] fatal: %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *FatalProviderError) Unwrap() error { return e.Err }

func NewFatalProviderError(kind EmbeddingKind, message string, err error) *FatalProviderError {
	return &FatalProviderError{Kind: kind, Message: message, Err: err}
}

// StoreError signals a persistence failure. The whole ingestion
// transaction aborts; prior versions remain intact (§7).
type StoreError struct {
	Operation string
	SourceID  string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store[%s/%s]: %s", e.Operation, e.SourceID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(operation, sourceID, message string, err error) *StoreError {
	return &StoreError{Operation: operation, SourceID: sourceID, Message: message, Err: err}
}

// QueryError signals a malformed retrieval query or filter. Synchronous,
// never retried (§7).
type QueryError struct {
	Query   string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	q := e.Query
	if len(q) > 50 {
		q = q[:50] + "..."
	}
	msg := fmt.Sprintf("query %q: %s", q, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

func NewQueryError(query, message string, err error) *QueryError {
	return &QueryError{Query: query, Message: message, Err: err}
}

// Cancelled signals cooperative cancellation of an ingestion job or
// retrieval call. Not an error at the API boundary in the usual sense —
// it is a distinct terminal state (§7) — but it satisfies the error
// interface so it composes with errors.Is/errors.As and context plumbing.
type Cancelled struct {
	Stage string
	Err   error // usually context.Canceled or context.DeadlineExceeded
}

func (e *Cancelled) Error() string {
	if e.Stage == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled at stage %q", e.Stage)
}

func (e *Cancelled) Unwrap() error { return e.Err }

func NewCancelled(stage string, err error) *Cancelled {
	return &Cancelled{Stage: stage, Err: err}
}
