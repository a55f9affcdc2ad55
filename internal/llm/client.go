// Package llm provides completion client implementations for the
// external chat-completion APIs the responder agents call.
package llm

import (
	"context"
	"fmt"
)

// Client turns a natural-language prompt into a single text completion.
type Client interface {
	// Complete sends the prompt and returns the completion text. One
	// attempt per invocation — no retry, no backoff. Callers treat
	// any failure as terminal for that message.
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionError captures an upstream failure: a non-2xx status or a
// response missing the expected completion field.
type CompletionError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion API returned status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("completion API returned malformed response from %s: %s", e.URL, e.Body)
}
