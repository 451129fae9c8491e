package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a mock implementation of Generator for testing and offline
// development.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate returns a canned response based on the last user turn.
func (m *MockClient) Generate(ctx context.Context, systemInstruction string, turns []Message) (string, error) {
	var lastUser string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			lastUser = turns[i].Content
			break
		}
	}

	if lastUser == "" {
		return "[MOCK] This is a mock response from the LLM client.", nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(strings.TrimSpace(lastUser), 100)), nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
