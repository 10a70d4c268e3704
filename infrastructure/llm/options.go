package llm

import "strings"

// DefaultMaxTokens caps answers when the caller does not set "max_tokens".
const DefaultMaxTokens = 2048

// requestOptions is the provider-neutral view of the options map passed to
// Complete. Unknown keys are ignored.
type requestOptions struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	JSONMode    bool
}

func parseOptions(opts map[string]any, defaultModel string) requestOptions {
	o := requestOptions{Model: defaultModel, MaxTokens: DefaultMaxTokens}

	if m, ok := opts["model"].(string); ok && strings.TrimSpace(m) != "" {
		o.Model = m
	}
	if s, ok := opts["system"].(string); ok {
		o.System = s
	}
	if n, ok := toInt(opts["max_tokens"]); ok && n > 0 {
		o.MaxTokens = n
	}
	if t, ok := toFloat(opts["temperature"]); ok && t >= 0 && t <= 2 {
		o.Temperature = &t
	}
	if p, ok := toFloat(opts["top_p"]); ok && p >= 0 && p <= 1 {
		o.TopP = &p
	}
	o.JSONMode = wantsJSON(opts["response_format"])
	return o
}

// wantsJSON accepts {"type": "json_object"} in either map flavour, or the
// bare string "json".
func wantsJSON(v any) bool {
	switch f := v.(type) {
	case string:
		return f == "json" || f == "json_object"
	case map[string]string:
		return f["type"] == "json_object"
	case map[string]any:
		t, _ := f["type"].(string)
		return t == "json_object"
	}
	return false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
