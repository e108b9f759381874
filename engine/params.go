package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// placeholderRe matches ${step_id.path.to.field} references inside
// parameter values.
var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateParams resolves ${step.path} references in a step's
// parameters against the execution context. A value that is exactly one
// placeholder resolves to the referenced value with its type intact;
// placeholders embedded in a longer string are substituted textually.
// Unresolvable references are left as-is. The input map is never
// mutated.
func interpolateParams(params, execCtx map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, execCtx)
	}
	return out
}

func interpolateValue(v any, execCtx map[string]any) any {
	switch val := v.(type) {
	case string:
		return interpolateString(val, execCtx)
	case map[string]any:
		return interpolateParams(val, execCtx)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, execCtx)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, execCtx map[string]any) any {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// Whole-string placeholder: preserve the resolved value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		if resolved, ok := lookupPath(execCtx, path); ok {
			return resolved
		}
		return s
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(ph string) string {
		path := ph[2 : len(ph)-1]
		resolved, ok := lookupPath(execCtx, path)
		if !ok {
			return ph
		}
		return stringify(resolved)
	})
}

// lookupPath resolves a dotted path against the context via gjson,
// which handles nested objects, arrays, and quoted keys uniformly.
func lookupPath(execCtx map[string]any, path string) (any, bool) {
	raw, err := json.Marshal(execCtx)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
