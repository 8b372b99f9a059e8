package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "rate limited", err: fmt.Errorf("extract: %w", ErrRateLimited), want: KindTransient},
		{name: "record not found", err: fmt.Errorf("merge: %w", ErrRecordNotFound), want: KindTransient},
		{name: "dependency unavailable", err: ErrDependencyUnavailable, want: KindTransient},
		{name: "deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: KindTransient},
		{name: "malformed", err: fmt.Errorf("decode: %w", ErrMalformedPayload), want: KindPermanent},
		{name: "unexpected response", err: ErrUnexpectedResponse, want: KindPermanent},
		{name: "content unavailable", err: ErrContentUnavailable, want: KindPermanent},
		{name: "access denied", err: fmt.Errorf("metrics: %w", ErrAccessDenied), want: KindConfiguration},
		{name: "missing credentials", err: ErrMissingCredentials, want: KindConfiguration},
		{name: "unknown", err: New("boom"), want: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSentinelsWrapTheirClass(t *testing.T) {
	assert.True(t, Is(ErrRateLimited, ErrTransient))
	assert.True(t, Is(ErrMalformedPayload, ErrPermanentItem))
	assert.True(t, Is(ErrAccessDenied, ErrConfiguration))
	assert.False(t, Is(ErrAccessDenied, ErrTransient))
	assert.Equal(t, "rate limited", ErrRateLimited.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "permanent", KindPermanent.String())
	assert.Equal(t, "configuration", KindConfiguration.String())
}
