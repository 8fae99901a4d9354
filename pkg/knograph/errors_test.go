package knograph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/knograph/knograph/pkg/store"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("user %q: %w", "x", store.ErrNotFound), ErrTypeNotFound},
		{"store unavailable", fmt.Errorf("%w: connection lost", store.ErrUnavailable), ErrTypeStore},
		{"deadline", context.DeadlineExceeded, ErrTypeTimeout},
		{"timeout text", errors.New("i/o timeout"), ErrTypeTimeout},
		{"connection refused", errors.New("dial tcp 127.0.0.1:7687: connection refused"), ErrTypeNetwork},
		{"rate limit", errors.New("HTTP 429: rate limit exceeded"), ErrTypeLLM},
		{"openai", errors.New("OpenAI API error: bad key"), ErrTypeLLM},
		{"sql", errors.New("sql: no rows in result set"), ErrTypeStore},
		{"validation", errors.New("priority must be between 1 and 5"), ErrTypeValidation},
		{"unknown", errors.New("something odd"), ErrTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
