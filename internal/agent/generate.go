package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/session"
)

// GenerationResult is the outcome of a bounded generation/validation loop.
// Validated reports whether the code passed validation; callers must inspect
// it separately from transport status, since exhaustion still returns the
// best-effort last candidate.
type GenerationResult struct {
	Code       string
	Iterations int // generation calls made
	Validated  bool
	LastError  string
}

// GenerateCode produces Based code for an instruction. It runs up to the
// configured number of rounds: generate, strip fences, validate, and on
// failure feed the validation error back into the next round's prompt. A
// generation collaborator error aborts the loop immediately; validation
// transport errors count as ordinary failures. The last candidate is
// returned even when no round validated.
func (a *Agent) GenerateCode(ctx context.Context, instruction string, contextItems []string, history []session.Turn) *GenerationResult {
	historyStr := formatHistory(history)
	contextStr := formatContext(contextItems)

	userPrompt := fmt.Sprintf(
		"%s\n\nUser Request: %s%s\n\nOnly output valid Based code. Do not include any explanation or extra text.",
		historyStr, instruction, contextStr,
	)

	result := &GenerationResult{}
	a.logger.Info("generating code", zap.String("instruction", instruction), zap.Int("max_iter", a.maxIter))

	for i := 0; i < a.maxIter; i++ {
		raw, err := a.generator.Generate(ctx, a.guide+strictInstruction, []llm.Message{
			{Role: "user", Content: userPrompt},
		})
		result.Iterations = i + 1
		if err != nil {
			// Transport failure from the generation call itself: abort and
			// return whatever the previous rounds produced.
			result.LastError = "LLM call failed: " + err.Error()
			a.logger.Error("generation call failed, aborting", zap.Int("iteration", i+1), zap.Error(err))
			return result
		}

		candidate := StripCodeFences(raw)
		result.Code = candidate

		verdict, err := a.validator.Validate(ctx, candidate)
		if err != nil {
			result.LastError = "Validation service request failed: " + err.Error()
			a.logger.Warn("validation request failed", zap.Int("iteration", i+1), zap.Error(err))
			userPrompt = fmt.Sprintf(
				"%s\n\nUser Request: %s%s\n\nCould not validate the previous attempt due to a network error: %s\n\nPlease try generating the code again. Only output valid Based code.",
				historyStr, instruction, contextStr, result.LastError,
			)
			continue
		}

		if verdict.OK() {
			if verdict.ConvertedCode != "" {
				result.Code = verdict.ConvertedCode
			}
			result.Validated = true
			result.LastError = ""
			a.logger.Info("valid code generated", zap.Int("iterations", i+1))
			return result
		}

		result.LastError = verdict.Error
		if result.LastError == "" {
			result.LastError = fmt.Sprintf("validation failed: %+v", verdict)
		}
		a.logger.Info("validation failed, retrying",
			zap.Int("iteration", i+1), zap.String("error", result.LastError))
		userPrompt = fmt.Sprintf(
			"%s\n\nUser Request: %s%s\n\nThe previous code attempt failed validation with this error:\n%s\n\nPlease fix the code. Only output valid Based code. Do not include any explanation or extra text.",
			historyStr, instruction, contextStr, result.LastError,
		)
	}

	a.logger.Warn("generation exhausted without valid code",
		zap.Int("iterations", result.Iterations), zap.String("last_error", result.LastError))
	return result
}
