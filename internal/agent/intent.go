package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/session"
)

// Intent kinds.
const (
	IntentCreateFile = "CREATE_FILE"
	IntentEditFile   = "EDIT_FILE"
)

// Intent is the classified purpose of a user instruction. Description is
// only set for CREATE_FILE and feeds filename generation.
type Intent struct {
	Kind        string `json:"intent"`
	Description string `json:"description,omitempty"`
}

// classifySystemPrompt guides the model to emit a JSON intent object only.
const classifySystemPrompt = "You are an AI assistant helping a user work with 'Based' code files. " +
	"Analyze the user's latest prompt in the context of the conversation history and existing files. " +
	"Determine the primary intent: CREATE_FILE or EDIT_FILE. " +
	"1. CREATE_FILE: User explicitly wants to create a new Based file (e.g., 'create a file', 'make a new agent'). " +
	"2. EDIT_FILE: User wants to modify an existing file or doesn't explicitly ask to create one (e.g., 'change x', 'add y', 'refactor', 'implement feature z'). Default to this if unsure. " +
	"If the intent is CREATE_FILE, provide a concise description (2-5 words) of the file's purpose. " +
	"Respond ONLY with a JSON object containing 'intent' (string: 'CREATE_FILE' or 'EDIT_FILE') and optionally 'description' (string) if the intent is CREATE_FILE. " +
	`Example Response for CREATE_FILE: {"intent": "CREATE_FILE", "description": "simple weather chatbot"} ` +
	`Example Response for EDIT_FILE: {"intent": "EDIT_FILE"}`

// ClassifyIntent decides whether the instruction should create a new file or
// edit an existing one. Any classifier failure — transport error, malformed
// result, or an unrecognized kind — deterministically yields EDIT_FILE; the
// error is never propagated.
func (a *Agent) ClassifyIntent(ctx context.Context, instruction string, contextItems []string, history []session.Turn, existingFiles []string) Intent {
	historyStr := formatHistory(history)
	contextStr := formatContext(contextItems)

	fileListStr := "\n\nNo files exist yet."
	if len(existingFiles) > 0 {
		fileListStr = "\n\nExisting files:\n" + strings.Join(existingFiles, "\n")
	}

	userMessage := fmt.Sprintf(
		"%s%s%s\n\nUser prompt: '%s'\n\nDetermine the intent and respond ONLY with the JSON object.",
		historyStr, contextStr, fileListStr, instruction,
	)

	a.logger.Info("classifying intent", zap.String("instruction", instruction))

	raw, err := a.generator.Generate(ctx, classifySystemPrompt, []llm.Message{
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		a.logger.Error("intent classification call failed, defaulting to EDIT_FILE", zap.Error(err))
		return Intent{Kind: IntentEditFile}
	}

	content := StripCodeFences(raw)
	var intent Intent
	if err := json.Unmarshal([]byte(content), &intent); err != nil {
		a.logger.Error("failed to parse intent JSON, defaulting to EDIT_FILE", zap.String("response", content), zap.Error(err))
		return Intent{Kind: IntentEditFile}
	}
	if intent.Kind != IntentCreateFile && intent.Kind != IntentEditFile {
		a.logger.Warn("classifier returned unrecognized intent, defaulting to EDIT_FILE", zap.String("response", content))
		return Intent{Kind: IntentEditFile}
	}

	a.logger.Info("classified intent", zap.String("intent", intent.Kind), zap.String("description", intent.Description))
	return intent
}
