package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/noironetworks/neutron/pkg/schema"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     ErrorClass
		wantCode string
	}{
		{
			name:     "no response",
			err:      &apic.HostNoResponseError{URL: "https://apic1/api", Err: errors.New("connection refused")},
			want:     ErrorClassTransient,
			wantCode: ErrCodeUnreachable,
		},
		{
			name:     "server error",
			err:      fmt.Errorf("create: %w", &apic.RemoteRejectedError{Status: 503}),
			want:     ErrorClassTransient,
			wantCode: ErrCodeRejected,
		},
		{
			name:     "conflict",
			err:      &apic.RemoteRejectedError{Status: 409},
			want:     ErrorClassConflict,
			wantCode: ErrCodeRejected,
		},
		{
			name:     "bad request",
			err:      &apic.RemoteRejectedError{Status: 400},
			want:     ErrorClassPermanent,
			wantCode: ErrCodeRejected,
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("get: %w", context.DeadlineExceeded),
			want:     ErrorClassTransient,
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "not authenticated",
			err:      apic.ErrNotAuthenticated,
			want:     ErrorClassPermanent,
			wantCode: ErrCodePermissionDenied,
		},
		{
			name:     "unknown class",
			err:      fmt.Errorf("%w: fvNope", schema.ErrUnknownClass),
			want:     ErrorClassPermanent,
			wantCode: ErrCodeValidation,
		},
		{
			name:     "host not configured",
			err:      fmt.Errorf("%w: compute-9", ErrHostNotConfigured),
			want:     ErrorClassPermanent,
			wantCode: ErrCodeHostNotConfigured,
		},
		{
			name:     "engine error",
			err:      NewConflictError("busy", nil).WithCode(ErrCodeRejected),
			want:     ErrorClassConflict,
			wantCode: ErrCodeRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
			if got := CodeOf(tt.err); got != tt.wantCode {
				t.Errorf("CodeOf() = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestEngineError(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransientError("apply failed", cause).WithResource("tn-a/BD-b").WithOperation("ensure_bd")

	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the cause")
	}
	want := "[transient] apply failed (resource=tn-a/BD-b, operation=ensure_bd): boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := NewPermanentError("no cause", nil).Error(); got != "[permanent] no cause" {
		t.Errorf("Error() without cause = %q", got)
	}
	if !IsRetryable(err) || IsPermanent(err) {
		t.Error("transient error not retryable")
	}
}
