package mailing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
)

type fixedSettings domain.Settings

func (f fixedSettings) Current() domain.Settings { return domain.Settings(f) }

func TestRenderUsesSettings(t *testing.T) {
	r := NewRenderer(nil, fixedSettings{DefaultLink: "https://shop.example/sale", DiscountCode: "SPRING"})
	c := &domain.Campaign{
		ID:          "c1",
		Subject:     "{{ campaign.from_name | default: \"Us\" }}: use {{ discount_code }}",
		HTMLContent: `<a href="{{ default_link | utm: "spring" }}">Shop</a>`,
		TextContent: "Code {{ discount_code }}",
	}

	out, err := r.Render(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "Us: use SPRING", out.Subject)
	assert.Equal(t, `<a href="https://shop.example/sale?utm_campaign=spring&utm_medium=campaign&utm_source=email">Shop</a>`, out.HTML)
	assert.Equal(t, "Code SPRING", out.Text)
}

func TestRenderRejectsUndefinedVariables(t *testing.T) {
	r := NewRenderer(nil, fixedSettings{})
	_, err := r.Render(context.Background(), &domain.Campaign{Subject: "Hi", HTMLContent: "{{ first_name }}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first_name")
}

func TestRenderRejectsSyntaxErrors(t *testing.T) {
	r := NewRenderer(nil, fixedSettings{})
	_, err := r.Render(context.Background(), &domain.Campaign{Subject: "Hi", HTMLContent: "{% if %}"})
	assert.Error(t, err)
}

func TestRenderEmptyBodies(t *testing.T) {
	r := NewRenderer(nil, nil)
	out, err := r.Render(context.Background(), &domain.Campaign{Subject: "Hi"})
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestTemplateCacheFollowsContent(t *testing.T) {
	ts := NewTemplateService()
	a, err := ts.Render("A {{ x }}", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	b, err := ts.Render("B {{ x }}", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "A 1", a)
	assert.Equal(t, "B 1", b)
}
