// Package agent implements the code-assistant core: the bounded
// generation/validation retry engines, diff generation, intent routing, and
// filename generation. The text generation, validation, and patch-apply
// capabilities are collaborators consumed by contract.
package agent

import (
	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/diff"
	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/validate"
)

// DefaultMaxIter is the default bound on generation/validation attempts.
const DefaultMaxIter = 5

// Applier applies a normalized unified diff against a base text, returning
// the transformed text or a structured failure with a human-readable reason.
type Applier func(base, patch string) (string, error)

// Agent generates and modifies Based code through its collaborators.
type Agent struct {
	generator llm.Generator
	validator validate.Validator
	applier   Applier
	guide     string
	maxIter   int
	logger    *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIter overrides the retry bound.
func WithMaxIter(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIter = n
		}
	}
}

// WithApplier overrides the patch-apply collaborator.
func WithApplier(applier Applier) Option {
	return func(a *Agent) { a.applier = applier }
}

// WithGuide overrides the system guide prepended to every prompt.
func WithGuide(guide string) Option {
	return func(a *Agent) { a.guide = guide }
}

// New creates a new Agent.
func New(generator llm.Generator, validator validate.Validator, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		generator: generator,
		validator: validator,
		applier:   diff.ApplyPatch,
		guide:     defaultGuide,
		maxIter:   DefaultMaxIter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
