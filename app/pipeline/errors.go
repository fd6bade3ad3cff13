package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindTransient        Kind = "TRANSIENT"
	KindPermanentInput   Kind = "PERMANENT_INPUT"
	KindProviderRejected Kind = "PROVIDER_REJECTED"
	KindQuotaExceeded    Kind = "QUOTA_EXCEEDED"
	KindInternal         Kind = "INTERNAL"
)

// Error is a pipeline failure carrying the stage it occurred in and a
// retry-policy classification. Only TRANSIENT failures are retried.
type Error struct {
	Kind   Kind
	Stage  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s/%s): %v", e.Stage, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed (%s/%s)", e.Stage, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, stage, reason string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Reason: reason, Err: err}
}

// KindOf classifies an arbitrary error. Unclassified errors are INTERNAL.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Retryable reports whether the error should be retried under the pipeline's
// retry policy.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

const markerPrefix = "PROCESSING_FAILED::"

// Marker builds the sentinel failure string stored in a content item's
// full-text field, e.g. "PROCESSING_FAILED::EXTRACT::NETWORK".
func Marker(stage, reason string) string {
	return markerPrefix + stage + "::" + reason
}

// IsMarker reports whether a stored full-text value is a sentinel failure
// marker rather than real content.
func IsMarker(text string) bool {
	return strings.HasPrefix(text, markerPrefix)
}

// ParseMarker splits a sentinel marker into its stage and reason. Returns
// ok=false for non-marker text.
func ParseMarker(text string) (stage, reason string, ok bool) {
	if !IsMarker(text) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(text, markerPrefix), "::", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
