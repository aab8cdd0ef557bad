package fault

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUniqueViolation     = errors.New("unique violation")
	ErrForeignKeyViolation = errors.New("restricted for deletion")
	ErrSessionFrozen       = errors.New("session is frozen")
	ErrSessionExpired      = errors.New("session has expired")
	ErrNotEligible         = errors.New("session is not eligible for freezing")
)

type ErrorType int

const (
	ErrClient ErrorType = iota
	ErrInternal
)

type Fault struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.typeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.typeString(), e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

// typeString returns a human-readable representation of the error type.
func (e *Fault) typeString() string {
	switch e.Type {
	case ErrClient:
		return "ClientError"
	case ErrInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// NewClientError creates a new client error.
func NewClientError(msg string, err error) error {
	return &Fault{
		Type:    ErrClient,
		Message: msg,
		Err:     err,
	}
}

// NewInternalError creates a new internal server error.
func NewInternalError(msg string, err error) error {
	return &Fault{
		Type:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// IsClientError checks if an error is a client error.
func IsClientError(err error) bool {
	var ce *Fault
	if errors.As(err, &ce) {
		return ce.Type == ErrClient
	}
	return false
}

// IsInternalError checks if an error is an internal error.
func IsInternalError(err error) bool {
	var ce *Fault
	if errors.As(err, &ce) {
		return ce.Type == ErrInternal
	}
	return false
}

// ConfigurationError indicates broken questionnaire configuration: a cyclic
// graph, a graph over the node cap, or structurally invalid edges. Fatal from
// the caller's point of view; never auto-repaired.
type ConfigurationError struct {
	GraphID string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("graph %s misconfigured: %s", e.GraphID, e.Reason)
}

// NewConfigurationError creates a configuration error for the given graph.
func NewConfigurationError(graphID, reason string) error {
	return &ConfigurationError{GraphID: graphID, Reason: reason}
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ValidationError indicates an answer payload that fails its question's
// contract. Recoverable: the caller can correct the payload and resubmit.
type ValidationError struct {
	QuestionID string
	Rule       string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %s failed %s: %s", e.QuestionID, e.Rule, e.Message)
}

// NewValidationError creates a validation error for the given question and rule.
func NewValidationError(questionID, rule, message string) error {
	return &ValidationError{QuestionID: questionID, Rule: rule, Message: message}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
