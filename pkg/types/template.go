package types

import (
	"fmt"
	"strings"
)

// Template identifies the language runtime a sandbox is started with.
type Template string

const (
	TemplatePython Template = "python"
	TemplateNode   Template = "node"
)

// ParseTemplate normalizes a free-form template string, folding known
// aliases (nodejs, javascript) onto "node". Any other value is rejected —
// the caller gets an unsupported-template error before any remote call is
// attempted.
func ParseTemplate(s string) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python":
		return TemplatePython, nil
	case "node", "nodejs", "javascript":
		return TemplateNode, nil
	default:
		return "", fmt.Errorf("unsupported template %q: recognized templates are python, node", s)
	}
}
