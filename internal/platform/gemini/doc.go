// Package gemini provides an implementation of the generation.Generator interface
// backed by Google's Gemini and Imagen models.
//
// This package is an infrastructure adapter, connecting the task handlers to
// Google's external AI service without exposing the details of the service to
// the rest of the application.
//
// Key components:
//
// 1. GeminiGenerator:
//   - Implements the generation.Generator interface
//   - Sends text prompts to the configured Gemini model and image prompts to
//     the configured Imagen model
//
// 2. Prompt Management:
//   - Prompt templates are embedded in the binary and rendered with the
//     request fields
//   - Text models are asked for JSON output matching a fixed schema
//
// 3. Error Handling:
//   - Implements retry logic with exponential backoff for transient errors
//   - Categorizes API errors into the generation package's sentinel errors
//   - Reports safety blocks as generation.ErrContentBlocked without retrying
//
// The package depends on the google.golang.org/genai client library for
// communicating with the Gemini API.
package gemini
