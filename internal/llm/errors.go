package llm

import "fmt"

// AuthError reports a rejected API key. It aborts the conversation turn
// rather than being retried.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Provider, e.Message)
}
