// Package judge asks an LLM to compare summaries of the same text and rank
// them.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// ErrUnavailable is returned when no LLM provider is configured.
var ErrUnavailable = errors.New("ai judge is not configured")

// Default generation settings.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
)

var validate = validator.New()

// Config tunes the judge's LLM calls.
type Config struct {
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens" validate:"required,min=256,max=8192"`
}

// DefaultConfig returns the default judge settings.
func DefaultConfig() Config {
	return Config{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// Candidate is one summary submitted for comparison.
type Candidate struct {
	Model   string `json:"model" validate:"required"`
	Summary string `json:"summary" validate:"required"`
}

// Ranking is the judge's assessment of one candidate.
type Ranking struct {
	Model     string  `json:"model" validate:"required"`
	Rank      int     `json:"rank" validate:"min=1"`
	Score     float64 `json:"score" validate:"min=0,max=100"`
	Reasoning string  `json:"reasoning"`
}

// Verdict is the result of a comparison.
type Verdict struct {
	Winner           string    `json:"winner"`
	Rankings         []Ranking `json:"rankings"`
	DetailedAnalysis string    `json:"detailed_analysis"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
}

type llmVerdict struct {
	Winner           string    `json:"winner"`
	Rankings         []Ranking `json:"rankings" validate:"dive"`
	DetailedAnalysis string    `json:"detailed_analysis"`
}

const promptText = `Bạn là một chuyên gia đánh giá chất lượng tóm tắt văn bản.
Hãy so sánh các bản tóm tắt sau và xác định bản tóm tắt tốt nhất.

## VĂN BẢN GỐC:
{{.Original}}

## CÁC BẢN TÓM TẮT CẦN SO SÁNH:
{{range $i, $c := .Candidates}}
### Model {{inc $i}}: {{$c.Model}}
{{$c.Summary}}
{{end}}
## TIÊU CHÍ ĐÁNH GIÁ:
1. **Fluency** (Trôi chảy): Văn phong tự nhiên, ngữ pháp đúng
2. **Coherence** (Mạch lạc): Các ý kết nối logic, dễ hiểu
3. **Relevance** (Liên quan): Nội dung đúng trọng tâm, không thừa thãi
4. **Consistency** (Nhất quán): Không mâu thuẫn với văn bản gốc

## YÊU CẦU:
Trả về JSON với format CHÍNH XÁC như sau (không có text thêm, chỉ JSON):
{
    "winner": "<tên model thắng>",
    "rankings": [
        {"model": "<tên model>", "rank": 1, "score": 85, "reasoning": "<lý do ngắn gọn>"},
        {"model": "<tên model>", "rank": 2, "score": 75, "reasoning": "<lý do ngắn gọn>"}
    ],
    "detailed_analysis": "<phân tích chi tiết tại sao model thắng tốt hơn, 2-3 câu>"
}

Lưu ý: Score từ 0-100, rank bắt đầu từ 1 (1 là tốt nhất).`

var promptTemplate = template.Must(template.New("judge").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(promptText))

// Judge compares summaries with an LLM.
type Judge struct {
	llm    ports.LLMClient
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Judge. A nil llm yields a Judge whose Compare always fails
// with ErrUnavailable.
func New(llm ports.LLMClient, cfg Config, logger *slog.Logger) (*Judge, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid judge config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{
		llm:    llm,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "judge")),
		tracer: otel.Tracer("ai-judge"),
	}, nil
}

// Available reports whether an LLM provider is configured.
func (j *Judge) Available() bool { return j.llm != nil }

// Compare ranks the candidate summaries of original. Model names in the
// LLM answer are mapped back to the submitted keys.
func (j *Judge) Compare(ctx context.Context, original string, candidates []Candidate) (Verdict, error) {
	if !j.Available() {
		return Verdict{}, ErrUnavailable
	}
	if err := validateInput(original, candidates); err != nil {
		return Verdict{}, err
	}

	ctx, span := j.tracer.Start(ctx, "Judge.Compare",
		trace.WithAttributes(
			attribute.Int("judge.candidates", len(candidates)),
			attribute.String("judge.model", j.llm.GetModel()),
		))
	defer span.End()

	start := time.Now()
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, struct {
		Original   string
		Candidates []Candidate
	}{original, candidates}); err != nil {
		return Verdict{}, fmt.Errorf("rendering judge prompt: %w", err)
	}

	options := map[string]any{
		"temperature": j.cfg.Temperature,
		"max_tokens":  j.cfg.MaxTokens,
	}
	if supportsJSONMode(j.llm) {
		options["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := j.llm.Complete(ctx, buf.String(), options)
	if err != nil {
		span.RecordError(err)
		return Verdict{}, ports.NewLLMError(j.llm.GetModel(), "Judge.Compare", err)
	}

	v, err := parseVerdict(response, candidates)
	if err != nil {
		span.RecordError(err)
		j.logger.Warn("unparseable judge response",
			slog.Int("response_chars", len(response)),
			slog.String("error", err.Error()))
		return Verdict{}, err
	}
	v.ProcessingTimeMs = time.Since(start).Milliseconds()

	j.logger.Info("summaries judged",
		slog.String("winner", v.Winner),
		slog.Int("candidates", len(candidates)),
		slog.Int64("took_ms", v.ProcessingTimeMs))
	return v, nil
}

func validateInput(original string, candidates []Candidate) error {
	verr := domain.NewValidationError("judge request")
	if strings.TrimSpace(original) == "" {
		verr.AddError("original text is required")
	}
	if len(candidates) == 0 {
		verr.AddError("at least one summary is required")
	}
	seen := make(map[string]bool, len(candidates))
	for i, c := range candidates {
		if err := validate.Struct(c); err != nil {
			verr.AddError(fmt.Sprintf("summary %d: model and summary are required", i+1))
			continue
		}
		if seen[c.Model] {
			verr.AddError(fmt.Sprintf("summary %d: duplicate model %q", i+1, c.Model))
		}
		seen[c.Model] = true
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// parseVerdict extracts and validates the JSON verdict in response.
func parseVerdict(response string, candidates []Candidate) (Verdict, error) {
	raw := extractJSON(response)
	if raw == "" {
		return Verdict{}, fmt.Errorf("no JSON object in judge response: %w", ports.ErrInvalidResponse)
	}
	var lv llmVerdict
	if err := json.Unmarshal([]byte(raw), &lv); err != nil {
		return Verdict{}, fmt.Errorf("decoding judge response: %w: %w", ports.ErrInvalidResponse, err)
	}
	if err := validate.Struct(lv); err != nil {
		return Verdict{}, fmt.Errorf("judge response fields: %w: %w", ports.ErrInvalidResponse, err)
	}

	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Model
	}
	for i := range lv.Rankings {
		lv.Rankings[i].Model = resolveModel(lv.Rankings[i].Model, keys)
	}
	slices.SortStableFunc(lv.Rankings, func(a, b Ranking) int { return a.Rank - b.Rank })

	winner := resolveModel(lv.Winner, keys)
	if winner == "" && len(lv.Rankings) > 0 {
		winner = lv.Rankings[0].Model
	}
	if winner == "" {
		winner = "unknown"
	}
	return Verdict{
		Winner:           winner,
		Rankings:         lv.Rankings,
		DetailedAnalysis: lv.DetailedAnalysis,
	}, nil
}

// resolveModel maps a model name written by the LLM to a submitted key: an
// exact case-insensitive match first, then the longest key contained in the
// name ("Model 2: qwen"), then the nearest key by edit distance. Names too
// far from every key are returned unchanged.
func resolveModel(name string, keys []string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	for _, k := range keys {
		if strings.ToLower(k) == lower {
			return k
		}
	}

	contained := ""
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) && len(k) > len(contained) {
			contained = k
		}
	}
	if contained != "" {
		return contained
	}

	best, bestDist := "", -1
	for _, k := range keys {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(k))
		if bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	if bestDist >= 0 && bestDist <= max(len(lower), len(best))/3 {
		return best
	}
	return name
}

// supportsJSONMode reports whether the provider accepts a JSON response
// format option.
func supportsJSONMode(client ports.LLMClient) bool {
	model := strings.ToLower(client.GetModel())
	return strings.Contains(model, "gpt") || strings.Contains(model, "gemini")
}

// extractJSON returns the first JSON object in response, looking inside a
// ```json fence first. It returns "" when there is none.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
