package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Renderer executes named HTML templates from a TemplateSource
type Renderer struct {
	source TemplateSource
}

// NewRenderer creates a renderer over source
func NewRenderer(source TemplateSource) *Renderer {
	return &Renderer{source: source}
}

// Render returns the HTML body for the template name filled with data.
// A key missing from data is an error.
func (r *Renderer) Render(ctx context.Context, name string, data map[string]any) (string, error) {
	text, err := r.source.Load(ctx, name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
