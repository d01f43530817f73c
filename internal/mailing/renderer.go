package mailing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// SettingsSource exposes the current settings snapshot.
type SettingsSource interface {
	Current() domain.Settings
}

// Renderer renders a campaign's subject and bodies once per run. Bindings
// available to templates:
//
//	campaign.id, campaign.subject, campaign.from_name
//	default_link, discount_code
//
// Any other variable is a render error, which fails the run before any
// recipient is contacted.
type Renderer struct {
	templates *TemplateService
	settings  SettingsSource
}

// NewRenderer creates a renderer reading defaults from settings.
func NewRenderer(templates *TemplateService, settings SettingsSource) *Renderer {
	if templates == nil {
		templates = NewTemplateService()
	}
	return &Renderer{templates: templates, settings: settings}
}

// Render implements sending.Renderer.
func (r *Renderer) Render(_ context.Context, c *domain.Campaign) (*domain.RenderedContent, error) {
	bindings := r.bindings(c)

	parts := []struct {
		name string
		src  string
		dst  *string
	}{
		{"subject", c.Subject, new(string)},
		{"html", c.HTMLContent, new(string)},
		{"text", c.TextContent, new(string)},
	}
	for _, p := range parts {
		if problems := r.templates.ValidateVariables(p.src, bindings); len(problems) > 0 {
			names := make([]string, 0, len(problems))
			for _, pr := range problems {
				names = append(names, pr.Variable)
			}
			return nil, fmt.Errorf("%s: undefined variables: %s", p.name, strings.Join(names, ", "))
		}
		out, err := r.templates.Render(p.src, bindings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = out
	}

	return &domain.RenderedContent{
		Subject: *parts[0].dst,
		HTML:    *parts[1].dst,
		Text:    *parts[2].dst,
	}, nil
}

func (r *Renderer) bindings(c *domain.Campaign) map[string]interface{} {
	var s domain.Settings
	if r.settings != nil {
		s = r.settings.Current()
	}
	return map[string]interface{}{
		"campaign": map[string]interface{}{
			"id":        c.ID,
			"subject":   c.Subject,
			"from_name": c.FromName,
		},
		"default_link":  s.DefaultLink,
		"discount_code": s.DiscountCode,
	}
}
