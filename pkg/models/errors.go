package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrBadRequest            = errors.New("bad request")
	ErrLabelNotFound         = errors.New("label not found")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrStorage               = errors.New("storage error")
	ErrGeneration            = errors.New("generation error")
	ErrLockAcquisitionFailed = errors.New("failed to acquire advisory lock")
)

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

// LabelNotFoundError is returned when neither the generic nor the brand name
// query finds a label upstream.
type LabelNotFoundError struct {
	Drug string
}

func (e *LabelNotFoundError) Error() string {
	return fmt.Sprintf("no label found for %q", e.Drug)
}

// Unwrap returns both sentinels so callers can treat this as a plain not found.
func (e *LabelNotFoundError) Unwrap() []error {
	return []error{ErrLabelNotFound, ErrNotFound}
}

func NewLabelNotFoundError(drug string) error {
	return &LabelNotFoundError{Drug: drug}
}

// UpstreamError is returned when the label API call fails, either on transport
// or with a non-2xx status.
type UpstreamError struct {
	StatusCode    int
	OriginalError error
}

func (e *UpstreamError) Error() string {
	if e.OriginalError != nil {
		return fmt.Sprintf("upstream unavailable: %v", e.OriginalError)
	}
	return fmt.Sprintf("upstream unavailable: status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.OriginalError}
}

func NewUpstreamError(statusCode int, originalError error) error {
	return &UpstreamError{StatusCode: statusCode, OriginalError: originalError}
}

type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func NewConfigurationError(format string, a ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, a...)}
}

type AdvisoryLockError struct {
	Err error
}

func (e AdvisoryLockError) Error() string {
	return fmt.Sprintf("failed to acquire advisory lock: %v", e.Err)
}

func (e AdvisoryLockError) Unwrap() error {
	return ErrLockAcquisitionFailed
}

func NewAdvisoryLockError(err error) error {
	return AdvisoryLockError{Err: err}
}
