package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{
			name:          "timeout is transient",
			err:           errors.New("request timeout after 30s"),
			wantType:      ErrorTypeTransient,
			wantRetryable: true,
		},
		{
			name:          "timed out is transient",
			err:           errors.New("context deadline exceeded: operation timed out"),
			wantType:      ErrorTypeTransient,
			wantRetryable: true,
		},
		{
			name:          "fetch error is transient",
			err:           errors.New("fetch failed: connection reset"),
			wantType:      ErrorTypeTransient,
			wantRetryable: true,
		},
		{
			name:          "expired token is transient",
			err:           errors.New("expired token, refresh required"),
			wantType:      ErrorTypeTransient,
			wantRetryable: true,
		},
		{
			name:          "invalid token is permanent",
			err:           errors.New("invalid token provided"),
			wantType:      ErrorTypePermanent,
			wantRetryable: false,
		},
		{
			name:          "invalid payload is permanent",
			err:           errors.New("invalid payload: missing query field"),
			wantType:      ErrorTypePermanent,
			wantRetryable: false,
		},
		{
			name:          "unknown error defaults to permanent",
			err:           errors.New("something unexpected happened"),
			wantType:      ErrorTypePermanent,
			wantRetryable: false,
		},
		{
			name:          "nil error defaults to permanent",
			err:           nil,
			wantType:      ErrorTypePermanent,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := Classify(tt.err)
			assert.Equal(t, tt.wantType, class.Type)
			assert.Equal(t, tt.wantRetryable, class.Retryable)
		})
	}
}
