package ai

import (
	"context"
	"errors"
	"fmt"
)

// FallbackReply is returned when the provider answers without usable text.
const FallbackReply = "Sorry, I couldn't generate a response."

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 64 * 1024

// ErrMissingAPIKey means the provider credential is not configured.
var ErrMissingAPIKey = errors.New("ai: missing api key")

// Provider generates a reply for a single prompt.
type Provider interface {
	Name() string
	// Validate reports a configuration problem without touching the network.
	Validate() error
	Generate(ctx context.Context, prompt string) (string, error)
}

// UpstreamError carries a non-success answer from the provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d", e.Provider, e.StatusCode)
}
