// Package rewrite passes generated text through an optional coherence pass.
//
// A Rewriter receives the final generated text and returns an edited
// version. Nop leaves text untouched; Gemini asks a Gemini model for light
// grammatical repairs that keep the wording of the source text.
package rewrite

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a rewriter produces no text.
var ErrEmptyResponse = errors.New("rewriter returned no text")

// Rewriter edits generated text.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Nop is a Rewriter that returns its input unchanged.
type Nop struct{}

// Rewrite returns text.
func (Nop) Rewrite(_ context.Context, text string) (string, error) {
	return text, nil
}
