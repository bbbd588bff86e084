// Package errors provides standardized error handling for the automation platform.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Authentication / signature failures: hard rejection, never retried.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeSignatureInvalid     ErrorCode = "SIGNATURE_INVALID"

	// Request validation failures: rejected before any processing.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// External collaborator failures: recovered locally via fallbacks.
	ErrCodeExternalServiceFailed     ErrorCode = "EXTERNAL_SERVICE_FAILED"
	ErrCodeMalformedUpstreamResponse ErrorCode = "MALFORMED_UPSTREAM_RESPONSE"
	ErrCodeLLMTimeout                ErrorCode = "LLM_TIMEOUT"

	// Workflow engine failures: distinguishable, non-fatal to bot creation.
	ErrCodeEngineUnreachable ErrorCode = "ENGINE_UNREACHABLE"
	ErrCodeEngineRejected    ErrorCode = "ENGINE_REJECTED"

	// Graph compilation failures: fail closed at compile time.
	ErrCodeGraphInvalid        ErrorCode = "GRAPH_INVALID"
	ErrCodeUndeclaredReference ErrorCode = "UNDECLARED_FIELD_REFERENCE"

	// Record store failures.
	ErrCodeStoreQueryFailed ErrorCode = "STORE_QUERY_FAILED"
	ErrCodeRecordNotFound   ErrorCode = "RECORD_NOT_FOUND"

	// Messaging channel failures.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is allows errors.Is matching against another StandardError by code.
func (e *StandardError) Is(target error) bool {
	if t, ok := target.(*StandardError); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or empty string when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	if se, ok := err.(*StandardError); ok {
		return se.Code
	}
	return ""
}

// ==========================
// 2. Error Constructors
// ==========================

// NewAuthenticationFailedError creates a non-retryable webhook token error.
func NewAuthenticationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   "Webhook verification token mismatch",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSignatureInvalidError creates a non-retryable payment signature error.
func NewSignatureInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSignatureInvalid,
		Message:   "Payment webhook signature verification failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceFailedError creates a retryable external collaborator error.
func NewExternalServiceFailedError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalServiceFailed,
		Message:   "External service call failed",
		Details:   fmt.Sprintf("service: %s, error: %s", service, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedUpstreamResponseError creates a non-retryable LLM response parse error.
func NewMalformedUpstreamResponseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedUpstreamResponse,
		Message:   "Upstream response did not contain a parsable JSON object",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM completion timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEngineUnreachableError creates a retryable workflow-engine transport error.
func NewEngineUnreachableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineUnreachable,
		Message:   "Workflow engine unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEngineRejectedError creates a non-retryable workflow-engine rejection error.
func NewEngineRejectedError(status int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineRejected,
		Message:   "Workflow engine rejected the request",
		Details:   fmt.Sprintf("status: %d, body: %s", status, body),
		Retryable: false,
		Metadata:  map[string]interface{}{"status": status},
		Timestamp: time.Now().UTC(),
	}
}

// NewGraphInvalidError creates a non-retryable graph compilation error.
func NewGraphInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGraphInvalid,
		Message:   "Automation graph failed compile-time validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUndeclaredReferenceError creates a non-retryable template reference error.
func NewUndeclaredReferenceError(nodeName, field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUndeclaredReference,
		Message:   "Node template references a field not produced upstream",
		Details:   fmt.Sprintf("node: %s, field: %s", nodeName, field),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreQueryFailedError creates a retryable record store error.
func NewStoreQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreQueryFailed,
		Message:   "Record store query failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable missing record error.
func NewRecordNotFoundError(entity, key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   "Record not found",
		Details:   fmt.Sprintf("entity: %s, key: %s", entity, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryFailedError creates a retryable messaging channel error.
func NewDeliveryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   "Outbound message delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
