package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/relay-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// Function fields let test cases replace each method's behavior
	AnalyzeContentFn func(ctx context.Context, req generation.AnalysisRequest) (*generation.Analysis, error)
	GenerateTextFn   func(ctx context.Context, req generation.TextRequest) (*generation.GeneratedText, error)
	GenerateImagesFn func(ctx context.Context, req generation.ImageRequest) ([]generation.Image, error)

	// Default response values used when no function is set
	Analysis *generation.Analysis
	Text     *generation.GeneratedText
	Images   []generation.Image
	Err      error

	// mu protects the call tracking state for concurrent test cases
	mu               sync.Mutex
	AnalysisRequests []generation.AnalysisRequest
	TextRequests     []generation.TextRequest
	ImageRequests    []generation.ImageRequest
}

var _ generation.Generator = (*MockGenerator)(nil)

// AnalyzeContent implements the generation.Generator interface
func (m *MockGenerator) AnalyzeContent(ctx context.Context, req generation.AnalysisRequest) (*generation.Analysis, error) {
	m.mu.Lock()
	m.AnalysisRequests = append(m.AnalysisRequests, req)
	m.mu.Unlock()

	if m.AnalyzeContentFn != nil {
		return m.AnalyzeContentFn(ctx, req)
	}
	return m.Analysis, m.Err
}

// GenerateText implements the generation.Generator interface
func (m *MockGenerator) GenerateText(ctx context.Context, req generation.TextRequest) (*generation.GeneratedText, error) {
	m.mu.Lock()
	m.TextRequests = append(m.TextRequests, req)
	m.mu.Unlock()

	if m.GenerateTextFn != nil {
		return m.GenerateTextFn(ctx, req)
	}
	return m.Text, m.Err
}

// GenerateImages implements the generation.Generator interface
func (m *MockGenerator) GenerateImages(ctx context.Context, req generation.ImageRequest) ([]generation.Image, error) {
	m.mu.Lock()
	m.ImageRequests = append(m.ImageRequests, req)
	m.mu.Unlock()

	if m.GenerateImagesFn != nil {
		return m.GenerateImagesFn(ctx, req)
	}
	return m.Images, m.Err
}

// Calls returns how many times each method has been called.
func (m *MockGenerator) Calls() (analyze, text, images int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AnalysisRequests), len(m.TextRequests), len(m.ImageRequests)
}

// NewMockGenerator creates a MockGenerator that returns canned successful
// responses for every method.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Analysis: &generation.Analysis{
			Flagged:       false,
			Categories:    []string{},
			Sentiment:     "positive",
			Summary:       "A friendly greeting.",
			ToxicityScore: 0.02,
		},
		Text: &generation.GeneratedText{
			Text:     "Background jobs keep your API fast.",
			Hashtags: []string{"#golang", "#backend"},
		},
		Images: []generation.Image{
			{MIMEType: "image/png", Data: []byte("png-bytes")},
		},
	}
}

// NewMockGeneratorWithError creates a MockGenerator whose methods all return err
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}
