package generation

import "context"

// AnalysisRequest is the input to Generator.AnalyzeContent.
type AnalysisRequest struct {
	Text     string
	Platform string
}

// Analysis is the moderation and sentiment verdict for a text.
type Analysis struct {
	Flagged       bool     `json:"flagged"`
	Categories    []string `json:"categories"`
	Sentiment     string   `json:"sentiment"`
	Summary       string   `json:"summary"`
	ToxicityScore float64  `json:"toxicity_score"`
}

// TextRequest is the input to Generator.GenerateText.
type TextRequest struct {
	Topic     string
	Platform  string
	Tone      string
	MaxLength int
}

// GeneratedText is a generated post.
type GeneratedText struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}

// ImageRequest is the input to Generator.GenerateImages.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Count       int
}

// Image is one generated image.
type Image struct {
	MIMEType string
	Data     []byte
}

// Generator is the boundary between the task handlers and an external
// AI/LLM service.
type Generator interface {
	// AnalyzeContent classifies text for moderation and sentiment.
	AnalyzeContent(ctx context.Context, req AnalysisRequest) (*Analysis, error)

	// GenerateText writes a post about req.Topic.
	GenerateText(ctx context.Context, req TextRequest) (*GeneratedText, error)

	// GenerateImages renders req.Count images for req.Prompt.
	GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error)
}
