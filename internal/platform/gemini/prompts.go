package gemini

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/phrazzld/relay-api/internal/generation"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// promptTemplates holds the parsed prompt templates keyed by file name.
type promptTemplates struct {
	analysis   *template.Template
	generation *template.Template
}

func loadPromptTemplates() (*promptTemplates, error) {
	tmpl, err := template.ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt templates: %v", generation.ErrInvalidConfig, err)
	}

	lookup := func(name string) (*template.Template, error) {
		t := tmpl.Lookup(name)
		if t == nil {
			return nil, fmt.Errorf("%w: prompt template %s not found", generation.ErrInvalidConfig, name)
		}
		return t.Option("missingkey=error"), nil
	}

	analysis, err := lookup("analysis.tmpl")
	if err != nil {
		return nil, err
	}
	gen, err := lookup("generation.tmpl")
	if err != nil {
		return nil, err
	}
	return &promptTemplates{analysis: analysis, generation: gen}, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// analysisResponse is the JSON object the model returns for an analysis.
type analysisResponse struct {
	Flagged       bool     `json:"flagged"`
	Categories    []string `json:"categories"`
	Sentiment     string   `json:"sentiment"`
	Summary       string   `json:"summary"`
	ToxicityScore float64  `json:"toxicity_score"`
}

// textResponse is the JSON object the model returns for a generated post.
type textResponse struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}
