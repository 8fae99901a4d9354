// Package llm provides completion clients for the analysis collaborator.
package llm

import (
	"context"
	"errors"
)

// ErrMalformedOutput marks a completion that arrived but could not be parsed
// as the requested JSON shape. Callers can match it with errors.Is and fall
// back to a safe default; transport and API errors never carry it.
var ErrMalformedOutput = errors.New("malformed LLM output")

// Client is the interface for interacting with large language models.
type Client interface {
	// Complete sends a prompt to the LLM and returns the raw completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteJSON sends a prompt and unmarshals the JSON response into out,
	// tolerating markdown code fences and array-where-string-expected output.
	// out must be a pointer.
	CompleteJSON(ctx context.Context, prompt string, out any) error
}
