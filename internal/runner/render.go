package runner

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/queryview/internal/model"
)

// ErrInvalidParameter is wrapped by every rendering failure.
var ErrInvalidParameter = errors.New("runner: invalid parameter")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{ name }} placeholders with SQL literals for the
// declared parameters. values override the parameters' applied values.
func Render(text string, params []model.Parameter, values map[string]any) (string, error) {
	declared := make(map[string]model.Parameter, len(params))
	for _, p := range params {
		declared[p.Name] = p
	}

	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		if firstErr != nil {
			return m
		}
		name := placeholderPattern.FindStringSubmatch(m)[1]
		p, ok := declared[name]
		if !ok {
			firstErr = fmt.Errorf("%w: undeclared parameter %q", ErrInvalidParameter, name)
			return m
		}
		v := p.Value
		if override, ok := values[name]; ok {
			v = override
		}
		lit, err := literal(p, v)
		if err != nil {
			firstErr = err
			return m
		}
		return lit
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func literal(p model.Parameter, v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: missing value for parameter %q", ErrInvalidParameter, p.Name)
	}
	switch p.Type {
	case model.ParamNumber:
		switch n := v.(type) {
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(n), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return "", fmt.Errorf("%w: %q: %q is not a number", ErrInvalidParameter, p.Name, n)
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return "", fmt.Errorf("%w: %q: unsupported number %T", ErrInvalidParameter, p.Name, v)
	case model.ParamEnum:
		s := fmt.Sprint(v)
		if len(p.EnumOptions) > 0 && !contains(p.EnumOptions, s) {
			return "", fmt.Errorf("%w: %q: %q is not an option", ErrInvalidParameter, p.Name, s)
		}
		return quote(s), nil
	default:
		return quote(fmt.Sprint(v)), nil
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
