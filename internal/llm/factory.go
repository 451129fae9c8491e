package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvBasedMode is the environment variable name for mode selection.
	EnvBasedMode = "BASED_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewGenerator creates a Generator based on the BASED_MODE environment
// variable. If BASED_MODE=MOCK, returns a MockClient; otherwise returns a
// real Client.
func NewGenerator(baseURL, apiKey, model string, timeout time.Duration) Generator {
	if os.Getenv(EnvBasedMode) == ModeMock {
		log.Println("BASED_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, model, timeout)
}
