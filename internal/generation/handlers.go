package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/task"
)

// Task type names registered by Register.
const (
	TaskContentAnalysis   = "content_analysis"
	TaskContentGeneration = "content_generation"
	TaskImageGeneration   = "image_generation"
)

// Register binds the AI task handlers backed by gen to registry.
func Register(registry *task.Registry, gen Generator) {
	registry.Register(TaskContentAnalysis, ContentAnalysisHandler(gen))
	registry.Register(TaskContentGeneration, ContentGenerationHandler(gen))
	registry.Register(TaskImageGeneration, ImageGenerationHandler(gen))
}

// steps reports progress through a fixed number of named steps.
type steps struct {
	report task.ProgressFunc
	total  int
}

func (s steps) at(n int, name, message string) {
	s.report(task.Progress{
		CurrentStep:    name,
		TotalSteps:     s.total,
		CurrentStepNum: n,
		Percentage:     float64(n) / float64(s.total) * 100,
		Message:        message,
	})
}

func (s steps) start(name, message string) {
	s.report(task.Progress{
		CurrentStep:    name,
		TotalSteps:     s.total,
		CurrentStepNum: 1,
		Percentage:     5,
		Message:        message,
	})
}

// ContentAnalysisHandler returns the handler for content_analysis jobs.
//
// Input: {text, platform?}. Result: {flagged, categories, sentiment, summary,
// toxicity_score}.
func ContentAnalysisHandler(gen Generator) task.Handler {
	return func(ctx context.Context, job task.Job, _ task.JobReader, report task.ProgressFunc) (task.Payload, error) {
		log := logger.FromContext(ctx)
		progress := steps{report: report, total: 3}

		progress.start("validate", "validating input")
		var in analysisInput
		if err := decodeInput(job.Input, &in); err != nil {
			return nil, err
		}
		if in.Platform == "" {
			in.Platform = defaultPlatform
		}
		progress.at(1, "validate", "input validated")

		log.DebugContext(ctx, "analyzing content",
			"text_length", len(in.Text),
			"platform", in.Platform)
		analysis, err := gen.AnalyzeContent(ctx, AnalysisRequest{Text: in.Text, Platform: in.Platform})
		if err != nil {
			return nil, fmt.Errorf("content analysis failed: %w", err)
		}
		if analysis == nil {
			return nil, fmt.Errorf("content analysis failed: %w: empty analysis", ErrInvalidResponse)
		}
		progress.at(2, "analyze", "analysis received")

		if analysis.Categories == nil {
			analysis.Categories = []string{}
		}
		result, err := toPayload(analysis)
		if err != nil {
			return nil, fmt.Errorf("failed to encode analysis: %w", err)
		}
		progress.at(3, "finalize", "analysis complete")
		return result, nil
	}
}

// ContentGenerationHandler returns the handler for content_generation jobs.
//
// Input: {topic, platform?, tone?, max_length?}. Result: {text, hashtags}.
func ContentGenerationHandler(gen Generator) task.Handler {
	return func(ctx context.Context, job task.Job, _ task.JobReader, report task.ProgressFunc) (task.Payload, error) {
		log := logger.FromContext(ctx)
		progress := steps{report: report, total: 3}

		progress.start("validate", "validating input")
		var in textInput
		if err := decodeInput(job.Input, &in); err != nil {
			return nil, err
		}
		req := TextRequest{
			Topic:     in.Topic,
			Platform:  in.Platform,
			Tone:      in.Tone,
			MaxLength: in.MaxLength,
		}
		if req.Platform == "" {
			req.Platform = defaultPlatform
		}
		if req.Tone == "" {
			req.Tone = defaultTone
		}
		if req.MaxLength == 0 {
			req.MaxLength = defaultMaxLength
		}
		progress.at(1, "validate", "input validated")

		log.DebugContext(ctx, "generating content",
			"platform", req.Platform,
			"tone", req.Tone,
			"max_length", req.MaxLength)
		generated, err := gen.GenerateText(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("content generation failed: %w", err)
		}
		if generated == nil || strings.TrimSpace(generated.Text) == "" {
			return nil, fmt.Errorf("content generation failed: %w: empty text", ErrInvalidResponse)
		}
		progress.at(2, "generate", "content generated")

		if runes := []rune(generated.Text); len(runes) > req.MaxLength {
			generated.Text = string(runes[:req.MaxLength])
		}
		if generated.Hashtags == nil {
			generated.Hashtags = []string{}
		}
		result, err := toPayload(generated)
		if err != nil {
			return nil, fmt.Errorf("failed to encode generated content: %w", err)
		}
		progress.at(3, "finalize", "content ready")
		return result, nil
	}
}

// ImageGenerationHandler returns the handler for image_generation jobs.
//
// Input: {prompt, aspect_ratio?, count?}. Result: {images: [{mime_type,
// data_base64}], count}.
func ImageGenerationHandler(gen Generator) task.Handler {
	return func(ctx context.Context, job task.Job, _ task.JobReader, report task.ProgressFunc) (task.Payload, error) {
		log := logger.FromContext(ctx)
		progress := steps{report: report, total: 3}

		progress.start("validate", "validating input")
		var in imageInput
		if err := decodeInput(job.Input, &in); err != nil {
			return nil, err
		}
		req := ImageRequest{
			Prompt:      in.Prompt,
			AspectRatio: in.AspectRatio,
			Count:       in.Count,
		}
		if req.AspectRatio == "" {
			req.AspectRatio = defaultAspectRatio
		}
		if req.Count == 0 {
			req.Count = defaultImageCount
		}
		progress.at(1, "validate", "input validated")

		log.DebugContext(ctx, "generating images",
			"aspect_ratio", req.AspectRatio,
			"count", req.Count)
		images, err := gen.GenerateImages(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("image generation failed: %w", err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("image generation failed: %w: no images returned", ErrInvalidResponse)
		}
		progress.at(2, "generate", fmt.Sprintf("%d images generated", len(images)))

		encoded := make([]any, 0, len(images))
		for _, img := range images {
			encoded = append(encoded, map[string]any{
				"mime_type":   img.MIMEType,
				"data_base64": base64.StdEncoding.EncodeToString(img.Data),
			})
		}
		progress.at(3, "finalize", "images encoded")
		return task.Payload{
			"images": encoded,
			"count":  len(encoded),
		}, nil
	}
}
