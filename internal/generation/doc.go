// Package generation provides the AI task handlers run by the job queue and
// the Generator interface they call. Generator abstracts the LLM service
// (Gemini in production) so the handlers can be tested without network
// access.
//
// Three task types are provided:
//   - content_analysis: moderation and sentiment analysis of a text
//   - content_generation: social media post generation for a topic
//   - image_generation: image generation from a prompt
package generation
