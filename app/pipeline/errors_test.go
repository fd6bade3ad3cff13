package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_ClassifiedError(t *testing.T) {
	err := NewError(KindTransient, "EXTRACT", "NETWORK", errors.New("connection refused"))

	if KindOf(err) != KindTransient {
		t.Errorf("Expected TRANSIENT, got %s", KindOf(err))
	}
	if !Retryable(err) {
		t.Errorf("TRANSIENT errors should be retryable")
	}
}

func TestKindOf_WrappedError(t *testing.T) {
	inner := NewError(KindProviderRejected, "EXTRACT", "BLOCKED", nil)
	wrapped := fmt.Errorf("dispatch failed: %w", inner)

	if KindOf(wrapped) != KindProviderRejected {
		t.Errorf("Expected PROVIDER_REJECTED through wrapping, got %s", KindOf(wrapped))
	}
	if Retryable(wrapped) {
		t.Errorf("PROVIDER_REJECTED errors should not be retryable")
	}
}

func TestKindOf_UnclassifiedError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Errorf("Unclassified errors should be INTERNAL")
	}
}

func TestMarker_RoundTrip(t *testing.T) {
	m := Marker("TRANSCRIBE", "RECOVERY_TIMEOUT")

	if m != "PROCESSING_FAILED::TRANSCRIBE::RECOVERY_TIMEOUT" {
		t.Errorf("Unexpected marker: %s", m)
	}
	if !IsMarker(m) {
		t.Errorf("Marker should be recognized as a marker")
	}

	stage, reason, ok := ParseMarker(m)
	if !ok || stage != "TRANSCRIBE" || reason != "RECOVERY_TIMEOUT" {
		t.Errorf("ParseMarker returned (%s, %s, %v)", stage, reason, ok)
	}
}

func TestIsMarker_RegularText(t *testing.T) {
	if IsMarker("[00:12] Speaker A: hello") {
		t.Errorf("Transcript text should not be a marker")
	}
	if _, _, ok := ParseMarker("plain text"); ok {
		t.Errorf("ParseMarker should reject plain text")
	}
}
