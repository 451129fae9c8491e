package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/basedhq/backend/internal/session"
)

// defaultGuide is the system instruction describing the Based language. A
// deployment-specific guide can be supplied with WithGuide.
const defaultGuide = "You are an expert assistant that writes Based code, " +
	"a high-level agent scripting language. Based files describe conversational " +
	"agents as loops of say/listen steps with straightforward control flow."

// strictInstruction is appended to every generation prompt so the model
// emits code only.
const strictInstruction = "\n\nIMPORTANT: At all times, your output must be valid Based code only. " +
	"Do not include explanations, comments, or any text outside of Based code blocks."

// diffInstructions remind the model of the unified diff line markers.
const diffInstructions = "When generating a unified diff, unchanged lines must start with a space, " +
	"removed lines with '-', and added lines with '+'. Do not omit the space for unchanged lines. " +
	"The diff should be valid and directly applicable using the standard unified diff format."

var fenceRe = regexp.MustCompile("```[a-zA-Z]*\n?|```")

// StripCodeFences removes markdown code fences and optional language tags
// from LLM output and trims surrounding whitespace.
func StripCodeFences(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}

// formatHistory renders the conversation history for a prompt. Agent turns
// are summarized by what they did rather than their full code to keep the
// context window small.
func formatHistory(history []session.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var formatted []string
	for _, turn := range history {
		switch turn.Role {
		case session.RoleUser:
			formatted = append(formatted, "User: "+turn.Prompt)
		case session.RoleAgent:
			action := "[Agent response]"
			if turn.Code != "" {
				action = "[Generated initial code]"
			} else if turn.Diff != "" {
				action = "[Generated diff]"
			}
			filename := turn.Filename
			if filename == "" {
				filename = "N/A"
			}
			formatted = append(formatted, fmt.Sprintf("Agent: %s for file %s", action, filename))
		}
	}
	if len(formatted) == 0 {
		return ""
	}
	return "\n\nConversation history:\n" + strings.Join(formatted, "\n")
}

// formatContext renders the accumulated context items for a prompt.
func formatContext(items []string) string {
	var kept []string
	for _, item := range items {
		if item != "" {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "\n\nContext:\n" + strings.Join(kept, "\n")
}
