package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/generation"
	"google.golang.org/genai"
)

// models is the subset of *genai.Models used by GeminiGenerator.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API.
type GeminiGenerator struct {
	logger      *slog.Logger
	config      config.LLMConfig
	models      models
	prompts     *promptTemplates
	sleep       func(ctx context.Context, d time.Duration) error
	mu          sync.Mutex // guards rng
	rng         *rand.Rand
	temperature float32
}

var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new instance of GeminiGenerator with the provided dependencies.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(client.Models, logger, cfg)
}

func newGenerator(m models, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ImageModelName == "" {
		return nil, fmt.Errorf("%w: image model name cannot be empty", generation.ErrInvalidConfig)
	}

	prompts, err := loadPromptTemplates()
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries < 0 {
		logger.Warn("invalid max retries value, using default", "max_retries", 3)
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySeconds < 1 {
		logger.Warn("invalid retry delay value, using default", "retry_delay_seconds", 2)
		cfg.RetryDelaySeconds = 2
	}

	return &GeminiGenerator{
		logger:      logger.With("component", "gemini_generator"),
		config:      cfg,
		models:      m,
		prompts:     prompts,
		sleep:       sleepContext,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		temperature: 0.4,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnalyzeContent implements generation.Generator.
func (g *GeminiGenerator) AnalyzeContent(ctx context.Context, req generation.AnalysisRequest) (*generation.Analysis, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyPrompt
	}
	prompt, err := render(g.prompts.analysis, req)
	if err != nil {
		return nil, err
	}

	var resp analysisResponse
	if err := g.generateJSON(ctx, "analyze_content", prompt, &resp); err != nil {
		return nil, err
	}
	if resp.Sentiment == "" {
		return nil, fmt.Errorf("%w: analysis missing sentiment", generation.ErrInvalidResponse)
	}

	categories := resp.Categories
	if categories == nil {
		categories = []string{}
	}
	return &generation.Analysis{
		Flagged:       resp.Flagged,
		Categories:    categories,
		Sentiment:     resp.Sentiment,
		Summary:       resp.Summary,
		ToxicityScore: math.Max(0, math.Min(1, resp.ToxicityScore)),
	}, nil
}

// GenerateText implements generation.Generator.
func (g *GeminiGenerator) GenerateText(ctx context.Context, req generation.TextRequest) (*generation.GeneratedText, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, ErrEmptyPrompt
	}
	prompt, err := render(g.prompts.generation, req)
	if err != nil {
		return nil, err
	}

	var resp textResponse
	if err := g.generateJSON(ctx, "generate_text", prompt, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, fmt.Errorf("%w: generated text is empty", generation.ErrInvalidResponse)
	}
	return &generation.GeneratedText{Text: resp.Text, Hashtags: resp.Hashtags}, nil
}

// GenerateImages implements generation.Generator.
func (g *GeminiGenerator) GenerateImages(ctx context.Context, req generation.ImageRequest) ([]generation.Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	count := req.Count
	if count < 1 {
		count = 1
	}

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages:   int32(count),
		AspectRatio:      req.AspectRatio,
		OutputMIMEType:   "image/png",
		IncludeRAIReason: true,
	}

	var images []generation.Image
	err := g.withRetry(ctx, "generate_images", func(ctx context.Context) error {
		resp, err := g.models.GenerateImages(ctx, g.config.ImageModelName, req.Prompt, cfg)
		if err != nil {
			return classifyAPIError(err)
		}
		if resp == nil || len(resp.GeneratedImages) == 0 {
			return fmt.Errorf("%w: no images generated", generation.ErrInvalidResponse)
		}

		images = images[:0]
		var filtered string
		for _, gi := range resp.GeneratedImages {
			if gi == nil {
				continue
			}
			if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
				if gi.RAIFilteredReason != "" {
					filtered = gi.RAIFilteredReason
				}
				continue
			}
			mimeType := gi.Image.MIMEType
			if mimeType == "" {
				mimeType = cfg.OutputMIMEType
			}
			images = append(images, generation.Image{MIMEType: mimeType, Data: gi.Image.ImageBytes})
		}
		if len(images) == 0 {
			if filtered != "" {
				return fmt.Errorf("%w: %s", generation.ErrContentBlocked, filtered)
			}
			return fmt.Errorf("%w: no image data in response", generation.ErrInvalidResponse)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// generateJSON sends prompt to the text model and decodes its JSON reply into out.
func (g *GeminiGenerator) generateJSON(ctx context.Context, op, prompt string, out any) error {
	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	return g.withRetry(ctx, op, func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, g.config.ModelName, genai.Text(prompt), cfg)
		if err != nil {
			return classifyAPIError(err)
		}
		text, err := responseText(resp)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(stripCodeFence(text)), out); err != nil {
			return fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
		}
		return nil
	})
}

// responseText extracts the text of the first candidate, mapping safety
// blocks and empty replies to generation errors.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// classifyAPIError marks rate limits, server errors and network failures
// transient; other API errors are permanent.
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

// withRetry calls fn up to MaxRetries+1 times, backing off exponentially with
// jitter between attempts. Only ErrTransientFailure is retried.
func (g *GeminiGenerator) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	maxRetries := g.config.MaxRetries
	baseDelay := time.Duration(g.config.RetryDelaySeconds) * time.Second
	log := g.logger.With("operation", op)

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		log.DebugContext(ctx, "calling Gemini API",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		err := fn(ctx)
		if err == nil {
			log.DebugContext(ctx, "Gemini API call successful", "attempt", attemptNum)
			return nil
		}

		if !errors.Is(err, generation.ErrTransientFailure) {
			log.WarnContext(ctx, "permanent error, not retrying",
				"attempt", attemptNum,
				"error", err)
			return err
		}
		if attempt >= maxRetries {
			log.WarnContext(ctx, "maximum retry attempts reached",
				"max_retries", maxRetries,
				"error", err)
			return fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * [0.5, 1.0)
		g.mu.Lock()
		jitter := 0.5 + g.rng.Float64()*0.5
		g.mu.Unlock()
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)) * jitter)

		log.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay,
			"error", err)
		if err := g.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
	}
}
