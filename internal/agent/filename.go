package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/llm"
)

// filenameSystemPrompt guides the model to emit a bare filename only.
const filenameSystemPrompt = "You are a filename generation assistant. Given a description of a file's purpose, " +
	"create a concise, lowercase, dash-separated filename consisting of 1-3 words. " +
	"The filename MUST end with the '.based' extension. " +
	"Respond ONLY with the generated filename string. " +
	"Example Input: 'simple weather chatbot' Example Output: 'weather-chatbot.based' " +
	"Example Input: 'utility agent' Example Output: 'util-agent.based'"

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateFilename produces a filename like 'weather-chatbot.based' from a
// short description. An invalid model response or transport error falls back
// to a deterministic slug of the description.
func (a *Agent) GenerateFilename(ctx context.Context, description string) string {
	a.logger.Info("generating filename", zap.String("description", description))

	raw, err := a.generator.Generate(ctx, filenameSystemPrompt, []llm.Message{
		{Role: "user", Content: fmt.Sprintf("Description: '%s'\n\nGenerate the filename.", description)},
	})
	if err != nil {
		a.logger.Error("filename generation call failed, using fallback", zap.Error(err))
		return fallbackFilename(description)
	}

	filename := strings.ToLower(strings.TrimSpace(StripCodeFences(raw)))
	valid := strings.HasSuffix(filename, ".based") &&
		!strings.ContainsAny(filename, " /\\") &&
		len(filename) > len(".based")
	if !valid {
		a.logger.Warn("model produced invalid filename, using fallback", zap.String("filename", filename))
		return fallbackFilename(description)
	}

	a.logger.Info("generated filename", zap.String("filename", filename))
	return filename
}

// fallbackFilename derives a safe filename from the description: lowercase,
// non-alphanumeric runs collapsed to dashes, capped at 20 characters.
func fallbackFilename(description string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(description), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "agent"
	}
	if len(slug) > 20 {
		slug = slug[:20]
	}
	return slug + ".based"
}
