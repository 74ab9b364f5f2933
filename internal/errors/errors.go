// Package errors provides centralized error definitions and error handling
// utilities for devboxctl. It defines domain-specific errors, semantic error
// types, error constructors with context wrapping, and classification helpers
// that drive the retry-vs-fail-fast decisions made by the deployment layers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - ProviderError: errors returned by the provider HTTP API
//   - DeploymentError: errors during the deploy state machine
//   - SwarmError: errors from swarm member deployment or task dispatch
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input, state, or configuration
//   - TimeoutError: operation timed out
//
// # Classification
//
// Two classifications matter to callers:
//
//	// Transient errors may succeed on retry (poll loops, deploy retry).
//	if errors.IsRetryable(err) { ... }
//
//	// Configuration faults fail fast and never consume a retry.
//	if errors.IsConfiguration(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Provider-related sentinel errors
var (
	// ErrDevboxNotFound indicates that a devbox could not be found.
	ErrDevboxNotFound = New("devbox not found")
	// ErrBlueprintNotFound indicates that a blueprint could not be found.
	ErrBlueprintNotFound = New("blueprint not found")
	// ErrUnauthorized indicates that the provider rejected the credentials.
	ErrUnauthorized = New("provider rejected credentials")
	// ErrProviderUnavailable indicates a transport failure or 5xx response.
	ErrProviderUnavailable = New("provider unavailable")
)

// Lifecycle-related sentinel errors
var (
	// ErrDevboxNotRunning indicates that an operation requires a running devbox.
	ErrDevboxNotRunning = New("devbox not running")
	// ErrNoDevboxAvailable indicates the fallback chain was exhausted.
	ErrNoDevboxAvailable = New("no devbox available")
	// ErrResumeFailed indicates a suspended devbox could not be resumed.
	ErrResumeFailed = New("devbox resume failed")
)

// Deployment-related sentinel errors
var (
	// ErrBlueprintNotReady indicates the blueprint has not reached build_complete.
	ErrBlueprintNotReady = New("blueprint not ready")
	// ErrNoBlueprint indicates no blueprint id is configured.
	ErrNoBlueprint = New("no blueprint configured")
	// ErrCreateFailed indicates devbox creation failed at the provider.
	ErrCreateFailed = New("devbox creation failed")
	// ErrRetriesExhausted indicates all deployment attempts failed.
	ErrRetriesExhausted = New("deployment retries exhausted")
)

// Swarm-related sentinel errors
var (
	// ErrQuorumNotMet indicates fewer members were admitted than the minimum size.
	ErrQuorumNotMet = New("swarm quorum not met")
	// ErrNoResponses indicates no swarm member produced a response.
	ErrNoResponses = New("no swarm responses")
	// ErrSwarmNotDeployed indicates a task was dispatched before Deploy succeeded.
	ErrSwarmNotDeployed = New("swarm not deployed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrMissingCredential indicates a required credential is not set.
	ErrMissingCredential = New("missing credential")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DomainError is the base interface for all devboxctl errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type DomainError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsConfiguration returns true if the error is a configuration fault
	// that should fail fast without consuming a retry.
	IsConfiguration() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message       string
	cause         error
	severity      Severity
	retryable     bool
	configuration bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsConfiguration returns whether the error is a configuration fault.
func (e *baseError) IsConfiguration() bool {
	return e.configuration
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ProviderError represents errors returned by the provider HTTP API.
//
// Example:
//
//	err := errors.NewProviderError("list devboxes failed", errors.ErrProviderUnavailable)
//	err = err.WithEndpoint("/devboxes").WithStatusCode(503)
type ProviderError struct {
	baseError
	Endpoint   string
	StatusCode int
	Body       string // Truncated response body for diagnostics
}

// NewProviderError creates a new ProviderError.
func NewProviderError(message string, cause error) *ProviderError {
	return &ProviderError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithEndpoint adds the API endpoint to the error context.
func (e *ProviderError) WithEndpoint(endpoint string) *ProviderError {
	e.Endpoint = endpoint
	return e
}

// WithStatusCode adds the HTTP status code to the error context.
// Server-side (5xx) and rate-limit (429) statuses mark the error retryable;
// 401/403 mark it as a configuration fault.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	if code >= 500 || code == 429 {
		e.retryable = true
	}
	if code == 401 || code == 403 {
		e.configuration = true
	}
	return e
}

// WithBody adds a truncated response body to the error context.
func (e *ProviderError) WithBody(body string) *ProviderError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	e.Body = body
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ProviderError) WithRetryable(r bool) *ProviderError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ProviderError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "provider error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("provider error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s (body: %s)", msg, e.Body)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *ProviderError) Is(target error) bool {
	if _, ok := target.(*ProviderError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DeploymentError represents errors during the deploy state machine.
//
// Example:
//
//	err := errors.NewDeploymentError("devbox never became ready", errors.ErrTimeout)
//	err = err.WithPhase("waiting_ready").WithAttempt(2)
type DeploymentError struct {
	baseError
	Phase   string
	Attempt int
}

// NewDeploymentError creates a new DeploymentError.
func NewDeploymentError(message string, cause error) *DeploymentError {
	return &DeploymentError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Attempt: -1, // -1 indicates not set
	}
}

// WithPhase adds the deployment phase to the error context.
func (e *DeploymentError) WithPhase(phase string) *DeploymentError {
	e.Phase = phase
	return e
}

// WithAttempt adds the attempt number to the error context.
func (e *DeploymentError) WithAttempt(n int) *DeploymentError {
	e.Attempt = n
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *DeploymentError) WithRetryable(r bool) *DeploymentError {
	e.retryable = r
	return e
}

// WithConfiguration marks the error as a configuration fault.
func (e *DeploymentError) WithConfiguration() *DeploymentError {
	e.configuration = true
	return e
}

// Error returns the formatted error message.
func (e *DeploymentError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "deployment error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("deployment error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DeploymentError) Is(target error) bool {
	if _, ok := target.(*DeploymentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SwarmError represents errors from swarm member deployment or dispatch.
//
// Example:
//
//	err := errors.NewSwarmError("member dispatch failed", cause).WithMemberID("mem-3")
type SwarmError struct {
	baseError
	MemberID string
	DevboxID string
}

// NewSwarmError creates a new SwarmError.
func NewSwarmError(message string, cause error) *SwarmError {
	return &SwarmError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning, // member failures are isolated
		},
	}
}

// WithMemberID adds a swarm member id to the error context.
func (e *SwarmError) WithMemberID(id string) *SwarmError {
	e.MemberID = id
	return e
}

// WithDevboxID adds the member's devbox id to the error context.
func (e *SwarmError) WithDevboxID(id string) *SwarmError {
	e.DevboxID = id
	return e
}

// WithSeverity sets the error severity.
func (e *SwarmError) WithSeverity(s Severity) *SwarmError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SwarmError) Error() string {
	var parts []string
	if e.MemberID != "" {
		parts = append(parts, fmt.Sprintf("member=%s", e.MemberID))
	}
	if e.DevboxID != "" {
		parts = append(parts, fmt.Sprintf("devbox=%s", e.DevboxID))
	}

	prefix := "swarm error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("swarm error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SwarmError) Is(target error) bool {
	if _, ok := target.(*SwarmError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("devbox", "dbx_123")
//	fmt.Println(err) // "devbox 'dbx_123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	switch e.ResourceType {
	case "devbox":
		if errors.Is(target, ErrDevboxNotFound) {
			return true
		}
	case "blueprint":
		if errors.Is(target, ErrBlueprintNotFound) {
			return true
		}
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input, state, or configuration.
// Validation errors are always configuration faults: they fail fast and
// never consume a retry.
//
// Example:
//
//	err := errors.NewValidationError("api key not set")
//	err = err.WithField("provider.api_key_env")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:       message,
			severity:      SeverityWarning,
			configuration: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for devbox to reach running", 300*time.Second)
//	fmt.Println(err) // "timeout error: waiting for devbox to reach running (timeout: 5m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true, // timeouts are generally retryable
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing DomainError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout or ErrProviderUnavailable
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    time.Sleep(backoff)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrProviderUnavailable)
}

// IsConfiguration returns true if the error is a configuration fault that
// should fail fast without retry: missing credentials, blueprint not
// build_complete, validation failures.
//
// Example:
//
//	if errors.IsConfiguration(err) {
//	    return result, err // no retry
//	}
func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsConfiguration()
	}

	return Is(err, ErrMissingCredential) || Is(err, ErrNoBlueprint) ||
		Is(err, ErrBlueprintNotReady)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DomainError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.Severity()
	}

	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (ProviderError, DeploymentError, or SwarmError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	var deploymentErr *DeploymentError
	var swarmErr *SwarmError

	return As(err, &providerErr) || As(err, &deploymentErr) || As(err, &swarmErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to adopt devbox")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to resume devbox %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
