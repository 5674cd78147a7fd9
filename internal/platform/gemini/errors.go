package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a request carries no text to send.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)
