package ai

import "context"

// Completer produces a free-form completion for a grading prompt. Providers
// return their raw text; parsing into a score is the caller's concern.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}
