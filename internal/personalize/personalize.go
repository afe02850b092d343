// Package personalize substitutes recipient data into template text.
package personalize

import (
	"fmt"
	"regexp"

	"github.com/foxzi/msghub/internal/models"
)

// tokenPattern matches {name} placeholders
var tokenPattern = regexp.MustCompile(`\{([^{}\s]+)\}`)

// Content is a personalized subject/body pair
type Content struct {
	Subject string
	Body    string
}

// Variables builds the substitution map for a recipient.
// Layers, lowest priority first: recipient attributes, recipient custom
// fields, request variables.
func Variables(r *models.Recipient, custom map[string]any) map[string]string {
	vars := make(map[string]string, len(builtins)+len(custom))

	if r != nil {
		for _, b := range builtins {
			vars[b.Name] = b.value(r)
		}
		for k, v := range r.Custom {
			vars[k] = stringify(v)
		}
	} else {
		for _, b := range builtins {
			vars[b.Name] = ""
		}
	}

	for k, v := range custom {
		vars[k] = stringify(v)
	}

	return vars
}

// Personalize renders the template subject and body for one recipient.
// It never fails: unknown placeholders are left as written.
func Personalize(tmpl *models.Template, r *models.Recipient, custom map[string]any) Content {
	vars := Variables(r, custom)
	return Content{
		Subject: Render(tmpl.Subject, vars),
		Body:    Render(tmpl.Body, vars),
	}
}

// Render replaces every known {name} token in a single pass.
// Substituted values are not rescanned.
func Render(text string, vars map[string]string) string {
	if text == "" {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Params renders each positional parameter with the recipient's variables
func Params(params []string, r *models.Recipient, custom map[string]any) []string {
	if len(params) == 0 {
		return nil
	}
	vars := Variables(r, custom)
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = Render(p, vars)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
