package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeLLM represents LLM request/response errors
	ErrorTypeLLM ErrorType = "llm"
	// ErrorTypeTranscribe represents speech-to-text errors
	ErrorTypeTranscribe ErrorType = "transcribe"
	// ErrorTypeStore represents diary/document persistence errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeGraph represents topic graph errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypePipeline represents detection pipeline errors
	ErrorTypePipeline ErrorType = "pipeline"
	// ErrorTypeValidation represents request validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing-resource errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// errorType is promoted into every concrete error that embeds BaseError so
// IsErrorType can classify them without enumerating each type.
func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Not-found errors

// ErrEntryNotFound is returned when a diary entry does not exist
type ErrEntryNotFound struct {
	*BaseError
	EntryID string
}

func NewEntryNotFound(entryID string) *ErrEntryNotFound {
	return &ErrEntryNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("entry not found: %s", entryID), nil),
		EntryID:   entryID,
	}
}

// ErrSuggestionNotFound is returned when a topic suggestion does not exist
type ErrSuggestionNotFound struct {
	*BaseError
	SuggestionID string
}

func NewSuggestionNotFound(suggestionID string) *ErrSuggestionNotFound {
	return &ErrSuggestionNotFound{
		BaseError:    NewBaseError(ErrorTypeNotFound, fmt.Sprintf("suggestion not found: %s", suggestionID), nil),
		SuggestionID: suggestionID,
	}
}

// ErrTopicNotFound is returned when a topic id is not present in the graph
type ErrTopicNotFound struct {
	*BaseError
	TopicID string
}

func NewTopicNotFound(topicID string) *ErrTopicNotFound {
	return &ErrTopicNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("topic not found: %s", topicID), nil),
		TopicID:   topicID,
	}
}

// Validation errors

// ErrValidation is returned when request input fails validation before any mutation
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// LLM errors

// ErrLLMFailed is returned when an LLM request fails after retries
type ErrLLMFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewLLMFailed(model string, attempts int, err error) *ErrLLMFailed {
	return &ErrLLMFailed{
		BaseError: NewBaseError(ErrorTypeLLM, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrLLMMalformed is returned when the LLM response cannot be parsed
type ErrLLMMalformed struct {
	*BaseError
	Snippet string
}

func NewLLMMalformed(snippet string, err error) *ErrLLMMalformed {
	return &ErrLLMMalformed{
		BaseError: NewBaseError(ErrorTypeLLM, "malformed LLM response", err),
		Snippet:   snippet,
	}
}

// Transcription errors

// ErrTranscribeFailed is returned when speech-to-text fails
type ErrTranscribeFailed struct {
	*BaseError
	Language string
}

func NewTranscribeFailed(language string, err error) *ErrTranscribeFailed {
	return &ErrTranscribeFailed{
		BaseError: NewBaseError(ErrorTypeTranscribe, "transcription failed", err),
		Language:  language,
	}
}

// Store errors

// ErrDocumentCorrupt is returned when a persisted document could not be read
// and was reset to its empty shape
type ErrDocumentCorrupt struct {
	*BaseError
	Document string
}

func NewDocumentCorrupt(document string, err error) *ErrDocumentCorrupt {
	return &ErrDocumentCorrupt{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("document corrupt, reset to empty: %s", document), err),
		Document:  document,
	}
}

// ErrPersistFailed is returned when writing a document to durable storage fails
type ErrPersistFailed struct {
	*BaseError
	Document string
}

func NewPersistFailed(document string, err error) *ErrPersistFailed {
	return &ErrPersistFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to persist document: %s", document), err),
		Document:  document,
	}
}

// Graph errors

// ErrGraphConnectionFailed is returned when the Neo4j backend is unreachable
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// Pipeline errors

// ErrPipelineBusy is returned when a detection run is requested while one is
// already in flight
var ErrPipelineBusy = NewBaseError(ErrorTypePipeline, "detection run already in progress", nil)

// Context errors

// ErrContextTimeout is returned when an operation exceeds its deadline
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if typed, ok := err.(interface{ errorType() ErrorType }); ok {
		return typed.errorType() == errType
	}
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapper.Unwrap(), errType)
	}
	return false
}

// IsNotFound reports whether the error represents a missing resource
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsValidation reports whether the error represents rejected input
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}
