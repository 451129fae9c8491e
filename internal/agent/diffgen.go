package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/diff"
	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/session"
)

// DiffResult is the outcome of a bounded diff generation loop. OldCode is
// always the base text the loop started from, regardless of retries.
type DiffResult struct {
	Diff       string
	NewCode    string
	OldCode    string
	Iterations int // generation calls made
	Validated  bool
	LastError  string
}

// GenerateDiff produces a unified diff that modifies baseText according to
// the instruction. Each round has two independent failure channels: the diff
// may fail to normalize/apply against baseText, or it may apply but produce
// text that fails validation; either failure is fed back into the next
// round's prompt. On exhaustion the last diff that did apply is returned
// with the text it produced; if no diff ever applied, the last raw diff is
// paired with the unmodified base text.
func (a *Agent) GenerateDiff(ctx context.Context, baseText, instruction string, contextItems []string, history []session.Turn) *DiffResult {
	historyStr := formatHistory(history)
	contextStr := formatContext(contextItems)

	userPrompt := fmt.Sprintf(
		"%s\n\nGiven the following Based code, generate a unified diff (patch) to implement this user request: '%s'.%s\n%s\nOnly output a valid unified diff. Do not include any explanation or extra text.\nCurrent Based code:\n```based\n%s\n```",
		historyStr, instruction, contextStr, diffInstructions, baseText,
	)

	result := &DiffResult{NewCode: baseText, OldCode: baseText}
	var lastRawDiff string
	applied := false

	a.logger.Info("generating diff", zap.String("instruction", instruction), zap.Int("max_iter", a.maxIter))

	for i := 0; i < a.maxIter; i++ {
		raw, err := a.generator.Generate(ctx, a.guide+strictInstruction, []llm.Message{
			{Role: "user", Content: userPrompt},
		})
		result.Iterations = i + 1
		if err != nil {
			result.LastError = "LLM call failed: " + err.Error()
			a.logger.Error("generation call failed, aborting", zap.Int("iteration", i+1), zap.Error(err))
			break
		}

		rawDiff := StripCodeFences(raw)
		lastRawDiff = rawDiff

		newCode, err := a.applier(baseText, diff.Normalize(rawDiff))
		if err != nil {
			result.LastError = "The generated diff could not be applied: " + err.Error()
			a.logger.Warn("diff application failed, retrying",
				zap.Int("iteration", i+1), zap.Error(err))
			userPrompt = fmt.Sprintf(
				"%s\n\nUser Request: '%s'%s\n\nThe previous diff attempt failed to apply with this error:\n%s\n\n%s\nPlease generate a corrected unified diff. Only output the diff.\nCurrent Based code:\n```based\n%s\n```",
				historyStr, instruction, contextStr, result.LastError, diffInstructions, baseText,
			)
			continue
		}

		// Remember the last diff that did apply, together with its text.
		result.Diff = rawDiff
		result.NewCode = newCode
		applied = true

		verdict, err := a.validator.Validate(ctx, newCode)
		if err != nil {
			result.LastError = "Validation service request failed: " + err.Error()
			a.logger.Warn("validation request failed", zap.Int("iteration", i+1), zap.Error(err))
			userPrompt = fmt.Sprintf(
				"%s\n\nUser Request: '%s'%s\n\nCould not validate the code resulting from the previous diff due to a network error: %s\n\n%s\nPlease try generating the diff again.\nCurrent Based code:\n```based\n%s\n```",
				historyStr, instruction, contextStr, result.LastError, diffInstructions, baseText,
			)
			continue
		}

		if verdict.OK() {
			if verdict.ConvertedCode != "" {
				result.NewCode = verdict.ConvertedCode
			}
			result.Validated = true
			result.LastError = ""
			a.logger.Info("valid diff generated", zap.Int("iterations", i+1))
			return result
		}

		result.LastError = verdict.Error
		if result.LastError == "" {
			result.LastError = fmt.Sprintf("validation failed: %+v", verdict)
		}
		a.logger.Info("applied diff failed validation, retrying",
			zap.Int("iteration", i+1), zap.String("error", result.LastError))
		userPrompt = fmt.Sprintf(
			"%s\n\nUser Request: '%s'%s\n\nThe previous diff, when applied, produced code that failed validation with this error:\n%s\n\n%s\nPlease generate a corrected unified diff. Only output the diff.\nCurrent Based code:\n```based\n%s\n```",
			historyStr, instruction, contextStr, result.LastError, diffInstructions, baseText,
		)
	}

	if !applied {
		// No diff in the whole loop ever applied: pair the last raw diff
		// with the unmodified base text.
		result.Diff = lastRawDiff
		result.NewCode = baseText
	}
	a.logger.Warn("diff generation exhausted without valid result",
		zap.Int("iterations", result.Iterations), zap.String("last_error", result.LastError))
	return result
}
