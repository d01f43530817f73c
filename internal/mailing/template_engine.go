// Package mailing renders campaign content with the Liquid template
// language.
package mailing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// TemplateService handles Liquid template rendering with caching. Parsed
// templates are cached by content hash, so edits to a draft never hit a
// stale entry.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// TemplateValidationError represents a validation issue in a template
type TemplateValidationError struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// NewTemplateService creates a new template service with custom filters
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerCustomFilters()
	return ts
}

func (ts *TemplateService) registerCustomFilters() {
	// {{ name | default: "Friend" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ name | capitalize }}
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// {{ default_link | urlencode }}
	ts.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ user_input | escape }}
	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// {{ default_link | utm: "spring-sale" }}
	ts.engine.RegisterFilter("utm", func(link, campaign string) string {
		u, err := url.Parse(link)
		if err != nil || link == "" {
			return link
		}
		q := u.Query()
		q.Set("utm_source", "email")
		q.Set("utm_medium", "campaign")
		q.Set("utm_campaign", campaign)
		u.RawQuery = q.Encode()
		return u.String()
	})
}

// Parse compiles a template string and returns any syntax errors
func (ts *TemplateService) Parse(templateStr string) error {
	_, err := ts.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given bindings.
func (ts *TemplateService) Render(templateStr string, bindings map[string]interface{}) (string, error) {
	if templateStr == "" {
		return "", nil
	}
	key := cacheKey(templateStr)

	var tpl *liquid.Template
	if cached, ok := ts.cache.Load(key); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := ts.engine.ParseString(templateStr)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		ts.cache.Store(key, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

// ValidateVariables reports every {{ variable }} that is absent from bindings.
func (ts *TemplateService) ValidateVariables(templateStr string, bindings map[string]interface{}) []TemplateValidationError {
	var problems []TemplateValidationError
	seen := make(map[string]bool)

	for _, match := range varPattern.FindAllStringSubmatch(templateStr, -1) {
		varName := strings.TrimSpace(match[1])
		if seen[varName] || isLiquidKeyword(varName) {
			continue
		}
		seen[varName] = true

		if !variableExists(varName, bindings) {
			problems = append(problems, TemplateValidationError{
				Variable: varName,
				Message:  fmt.Sprintf("variable '%s' is not defined", varName),
			})
		}
	}
	return problems
}

// ClearCache removes all cached templates
func (ts *TemplateService) ClearCache() {
	ts.cache.Range(func(k, _ any) bool {
		ts.cache.Delete(k)
		return true
	})
}

func variableExists(varPath string, bindings map[string]interface{}) bool {
	var current interface{} = bindings
	for _, part := range strings.Split(varPath, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return false
		}
		if current, ok = m[part]; !ok {
			return false
		}
	}
	return true
}

func cacheKey(templateStr string) string {
	sum := md5.Sum([]byte(templateStr))
	return hex.EncodeToString(sum[:])
}

// isLiquidKeyword checks if a name is a Liquid control keyword
func isLiquidKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "if", "elsif", "else", "endif", "unless", "endunless",
		"case", "when", "endcase", "for", "endfor", "break", "continue",
		"forloop", "true", "false", "nil", "null", "blank", "empty":
		return true
	}
	return false
}
