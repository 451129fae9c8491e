// Package llm provides the text-generation collaborator: an OpenAI-compatible
// chat completion client consumed by the agent engines.
package llm

import "context"

// Message is one turn of a chat conversation sent to the model.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Generator is the contract the agent engines consume: a system instruction
// plus conversation turns in, free text out. The text may be fenced; no other
// structure is assumed.
type Generator interface {
	Generate(ctx context.Context, systemInstruction string, turns []Message) (string, error)
}

// Ensure both clients implement the Generator interface.
var (
	_ Generator = (*Client)(nil)
	_ Generator = (*MockClient)(nil)
)
