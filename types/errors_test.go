package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestSDKError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same kind",
			err:    NewError(KindNoSigner, "session has no account", nil),
			target: ErrNoSigner,
			want:   true,
		},
		{
			name:   "different kind",
			err:    NewError(KindRegistryEmpty, "length is 0", nil),
			target: ErrMalformedAddress,
			want:   false,
		},
		{
			name:   "wrapped with fmt.Errorf",
			err:    fmt.Errorf("create collection: %w", NewError(KindTransactionReverted, "status 0", nil)),
			target: ErrTransactionReverted,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("boom"),
			target: ErrTransactionFailed,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSDKError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindTransactionFailed, "send transaction", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if err.Error() != "[TRANSACTION_FAILED] send transaction: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("outer: %w", Errorf(KindInvalidAddress, "recipient %q", "nope"))); got != KindInvalidAddress {
		t.Errorf("KindOf() = %s, want %s", got, KindInvalidAddress)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %s, want empty", got)
	}
	if _, ok := IsSDKError(nil); ok {
		t.Error("IsSDKError(nil) should be false")
	}
}
