package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/relay-api/internal/task"
)

var validate = validator.New()

type analysisInput struct {
	Text     string `json:"text" validate:"required,max=10000"`
	Platform string `json:"platform" validate:"omitempty,max=50"`
}

type textInput struct {
	Topic     string `json:"topic" validate:"required,max=500"`
	Platform  string `json:"platform" validate:"omitempty,max=50"`
	Tone      string `json:"tone" validate:"omitempty,max=50"`
	MaxLength int    `json:"max_length" validate:"omitempty,gte=20,lte=5000"`
}

type imageInput struct {
	Prompt      string `json:"prompt" validate:"required,max=2000"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,oneof=1:1 3:4 4:3 9:16 16:9"`
	Count       int    `json:"count" validate:"omitempty,gte=1,lte=4"`
}

// Defaults applied to omitted optional fields.
const (
	defaultPlatform    = "general"
	defaultTone        = "neutral"
	defaultMaxLength   = 280
	defaultAspectRatio = "1:1"
	defaultImageCount  = 1
)

// decodeInput copies a job payload into dst and validates it. All failures
// wrap ErrInvalidInput with a message naming the offending fields.
func decodeInput(input task.Payload, dst any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %q must be a %s", ErrInvalidInput, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return fmt.Errorf("%w: %s", ErrInvalidInput, describe(validationErrors))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// describe renders validation errors using the payload's field names.
func describe(errs validator.ValidationErrors) string {
	names := map[string]string{
		"Text":        "text",
		"Platform":    "platform",
		"Topic":       "topic",
		"Tone":        "tone",
		"MaxLength":   "max_length",
		"Prompt":      "prompt",
		"AspectRatio": "aspect_ratio",
		"Count":       "count",
	}

	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		name := names[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, name+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", name, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// toPayload converts a result struct to a job payload.
func toPayload(v any) (task.Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var p task.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
