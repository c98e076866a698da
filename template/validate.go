package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrUndeclaredVariable signals the body references a variable that is
	// not declared on the template.
	ErrUndeclaredVariable = errors.New("template: undeclared variable")
	// ErrDuplicateVariable signals two declarations share a name.
	ErrDuplicateVariable = errors.New("template: duplicate variable name")
	// ErrMissingRequired signals a required variable has no value and no default.
	ErrMissingRequired = errors.New("template: missing required variable")
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Placeholders extracts the distinct variable names referenced in body, in
// order of first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Validate checks that every placeholder in body corresponds to a declared
// variable and that declarations are unique. Called on create and update.
func Validate(body string, vars []Variable) error {
	declared := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("template: variable with empty name")
		}
		if _, dup := declared[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateVariable, name)
		}
		declared[name] = struct{}{}
	}
	for _, name := range Placeholders(body) {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUndeclaredVariable, name)
		}
	}
	return nil
}

// Render substitutes populated values into body. A missing optional variable
// falls back to its default (empty string when none) and is reported as a
// warning; a missing required variable is an error.
func Render(body string, vars []Variable, values map[string]string) (string, []string, error) {
	byName := make(map[string]Variable, len(vars))
	for _, v := range vars {
		byName[v.Name] = v
	}

	var warnings []string
	var renderErr error
	out := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if val, ok := values[name]; ok && val != "" {
			return val
		}
		decl, declared := byName[name]
		if declared && decl.DefaultValue != nil {
			warnings = append(warnings, fmt.Sprintf("variable %q defaulted to %q", name, *decl.DefaultValue))
			return *decl.DefaultValue
		}
		if declared && decl.Required {
			if renderErr == nil {
				renderErr = fmt.Errorf("%w: %s", ErrMissingRequired, name)
			}
			return match
		}
		warnings = append(warnings, fmt.Sprintf("variable %q has no value", name))
		return ""
	})
	if renderErr != nil {
		return "", warnings, renderErr
	}
	return out, warnings, nil
}
