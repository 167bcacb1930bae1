package canvass_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperengineering/canvass"
)

func TestValidationError_Message(t *testing.T) {
	err := &canvass.ValidationError{Field: "Name", Message: "required"}
	if got := err.Error(); got != "validation: Name: required" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &canvass.SyncError{Operation: "push", StatusCode: 503, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find wrapped error")
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("Error() = %q, want status code", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want canvass.Kind
	}{
		{"nil", nil, canvass.KindUnknown},
		{"plain", base, canvass.KindUnknown},
		{"network", canvass.E(canvass.KindNetwork, "set", base), canvass.KindNetwork},
		{"wrapped auth", fmt.Errorf("push: %w", canvass.E(canvass.KindAuthentication, "set", base)), canvass.KindAuthentication},
		{"validation error", &canvass.ValidationError{Field: "Email", Message: "bad"}, canvass.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canvass.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		kind canvass.Kind
		want bool
	}{
		{canvass.KindNetwork, true},
		{canvass.KindData, true},
		{canvass.KindUnknown, true},
		{canvass.KindAuthentication, false},
		{canvass.KindPermission, false},
		{canvass.KindValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := canvass.E(tt.kind, "op", base)
			if got := canvass.IsRetryable(err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.kind, got, tt.want)
			}
			var ce *canvass.Error
			if errors.As(err, &ce) && ce.Retryable() != tt.want {
				t.Errorf("Error.Retryable() = %v, want %v", ce.Retryable(), tt.want)
			}
		})
	}

	if canvass.IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
}

func TestE_NilPassthrough(t *testing.T) {
	if err := canvass.E(canvass.KindNetwork, "op", nil); err != nil {
		t.Errorf("E(nil) = %v, want nil", err)
	}
}

func TestUserMessage(t *testing.T) {
	if msg := canvass.UserMessage(canvass.E(canvass.KindNetwork, "set", errors.New("x"))); !strings.Contains(msg, "Network") {
		t.Errorf("network message = %q", msg)
	}
	if msg := canvass.UserMessage(&canvass.ValidationError{Field: "Email", Message: "email is invalid"}); msg != "email is invalid" {
		t.Errorf("validation message = %q", msg)
	}
	if msg := canvass.UserMessage(nil); msg != "" {
		t.Errorf("nil message = %q", msg)
	}
}
