package domain

import (
	"context"
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuestion = NewDomainError(ErrCodeValidation, "question cannot be empty")
)

// Authorization errors
var (
	ErrInvalidToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
)

// ErrorKind classifies a pipeline failure independently of the stage it happened in.
type ErrorKind string

const (
	KindUnsupportedType ErrorKind = "UNSUPPORTED_TYPE"
	KindExtraction      ErrorKind = "EXTRACTION_FAILED"
	KindIndexing        ErrorKind = "INDEXING_FAILED"
	KindRetrieval       ErrorKind = "RETRIEVAL_FAILED"
	KindUnknownRole     ErrorKind = "UNKNOWN_ROLE"
	KindGeneration      ErrorKind = "GENERATION_FAILED"
)

// IsUserError reports whether the kind is caused by caller input rather than infrastructure.
func (k ErrorKind) IsUserError() bool {
	switch k {
	case KindUnsupportedType, KindUnknownRole, KindExtraction:
		return true
	}
	return false
}

// PipelineError is the structured failure of one pipeline run.
// Stage is empty until the orchestrator attributes the error to a state.
type PipelineError struct {
	Stage   State
	Kind    ErrorKind
	Message string
	Timeout bool
	Err     error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Stage when the target carries one.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

// NewPipelineError builds a PipelineError, flagging deadline expiry found in the cause chain.
func NewPipelineError(stage State, kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Kind:    kind,
		Message: message,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrUnsupportedType = &PipelineError{Kind: KindUnsupportedType, Message: "unsupported file type"}
	ErrExtraction      = &PipelineError{Kind: KindExtraction, Message: "extraction failed"}
	ErrIndexing        = &PipelineError{Kind: KindIndexing, Message: "indexing failed"}
	ErrRetrieval       = &PipelineError{Kind: KindRetrieval, Message: "retrieval failed"}
	ErrUnknownRole     = &PipelineError{Kind: KindUnknownRole, Message: "unknown role"}
	ErrGeneration      = &PipelineError{Kind: KindGeneration, Message: "generation failed"}
)

// AsPipelineError extracts a *PipelineError from the chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// WithStage returns err attributed to stage. Errors that already carry a stage are kept as is;
// anything that is not a PipelineError is wrapped with the given fallback kind.
func WithStage(stage State, fallback ErrorKind, err error) *PipelineError {
	if err == nil {
		return nil
	}
	if pe, ok := AsPipelineError(err); ok {
		if pe.Stage != "" {
			return pe
		}
		cp := *pe
		cp.Stage = stage
		if !cp.Timeout {
			cp.Timeout = errors.Is(err, context.DeadlineExceeded)
		}
		return &cp
	}
	return NewPipelineError(stage, fallback, string(stage)+" failed", err)
}
