package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/validate"
)

// scriptedGenerator returns canned responses in order, recording every
// prompt it receives.
type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, system string, turns []llm.Message) (string, error) {
	idx := g.calls
	g.calls++
	if len(turns) > 0 {
		g.prompts = append(g.prompts, turns[len(turns)-1].Content)
	}
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	return "", errors.New("scriptedGenerator: no response scripted")
}

// scriptedValidator returns canned verdicts in order.
type scriptedValidator struct {
	results []*validate.Result
	errs    []error
	calls   int
	inputs  []string
}

func (v *scriptedValidator) Validate(ctx context.Context, code string) (*validate.Result, error) {
	idx := v.calls
	v.calls++
	v.inputs = append(v.inputs, code)
	if idx < len(v.errs) && v.errs[idx] != nil {
		return nil, v.errs[idx]
	}
	if idx < len(v.results) {
		return v.results[idx], nil
	}
	return nil, errors.New("scriptedValidator: no result scripted")
}

func pass(converted string) *validate.Result {
	return &validate.Result{Status: validate.StatusSuccess, ConvertedCode: converted}
}

func fail(reason string) *validate.Result {
	return &validate.Result{Status: validate.StatusFail, Error: reason}
}

func newTestAgent(g llm.Generator, v validate.Validator, opts ...Option) *Agent {
	return New(g, v, zap.NewNop(), opts...)
}
