package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"github.com/tomtat/tomtat/infrastructure/cache"
	"github.com/tomtat/tomtat/infrastructure/llm"
	"github.com/tomtat/tomtat/internal/auth"
	"github.com/tomtat/tomtat/internal/evaluation"
	"github.com/tomtat/tomtat/internal/inference"
	"github.com/tomtat/tomtat/internal/judge"
	"github.com/tomtat/tomtat/internal/logging"
	"github.com/tomtat/tomtat/internal/ports"
)

// Development fallbacks for the token secrets; production deployments must
// override them through JWT_SECRET_KEY and JWT_REFRESH_SECRET_KEY.
const (
	DevAccessSecret  = "change-me"
	DevRefreshSecret = "refresh-secret-change-me"
)

// Config is the complete service configuration. It is read from YAML, then
// environment variables override individual fields.
type Config struct {
	Server     ServerConfig      `yaml:"server" validate:"required"`
	Logging    logging.Config    `yaml:"logging"`
	Inference  inference.Config  `yaml:"inference" validate:"required"`
	Evaluation evaluation.Config `yaml:"evaluation" validate:"required"`
	Summary    SummaryConfig     `yaml:"summary"`
	Auth       auth.Config       `yaml:"auth" validate:"required"`
	Judge      JudgeConfig       `yaml:"judge"`

	// Mongo and Valkey are optional; when nil the in-memory stores are used
	// and summaries are not cached.
	Mongo  *MongoConfig  `yaml:"mongo" validate:"omitempty"`
	Valkey *cache.Config `yaml:"valkey" validate:"omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"required,min=1s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" validate:"required,min=1024"`
	CORSOrigins     []string      `yaml:"cors_origins" validate:"dive,required"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	SeedUsers       bool          `yaml:"seed_users"`
}

// SummaryConfig tunes the summarization service.
type SummaryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}

// MongoConfig selects the MongoDB deployment backing users and history.
type MongoConfig struct {
	URI            string        `yaml:"uri" validate:"required,uri"`
	Database       string        `yaml:"database" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"required,min=1s"`
}

// JudgeConfig selects the LLM provider behind the AI judge. An empty
// Provider disables the judge.
type JudgeConfig struct {
	judge.Config `yaml:",inline"`

	Provider   string         `yaml:"provider" validate:"omitempty,oneof=google openai anthropic"`
	APIKey     string         `yaml:"api_key" validate:"required_with=Provider"`
	Model      string         `yaml:"model"`
	BaseURL    string         `yaml:"base_url" validate:"omitempty,url"`
	Resilience llm.Resilience `yaml:"resilience"`
}

// Enabled reports whether a judge provider is configured.
func (j JudgeConfig) Enabled() bool { return j.Provider != "" }

var configValidate = validator.New()

// DefaultConfig returns a configuration that runs entirely in memory against
// a local inference server.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  20 << 20,
			CORSOrigins:     []string{"*"},
			MetricsEnabled:  true,
			SeedUsers:       true,
		},
		Logging:    logging.Config{Level: "info"},
		Inference:  inference.Config{BaseURL: "http://localhost:8001", Timeout: 120 * time.Second},
		Evaluation: evaluation.DefaultConfig(),
		Summary:    SummaryConfig{CacheTTL: time.Hour},
		Auth: auth.Config{
			Secret:        DevAccessSecret,
			RefreshSecret: DevRefreshSecret,
			AccessTTL:     auth.DefaultAccessTTL,
			RefreshTTL:    auth.DefaultRefreshTTL,
		},
		Judge: JudgeConfig{
			Config:     judge.DefaultConfig(),
			Resilience: llm.DefaultResilience(),
		},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are left untouched.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := gotenv.Load(filepath.Clean(p))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads the YAML file at path (if path is non-empty), applies
// environment overrides read through getenv and validates the result.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	var r io.Reader = bytes.NewReader(nil)
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ports.NewConfigError(path, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
		}
		if err != nil {
			return Config{}, ports.NewConfigError(path, err)
		}
		r = bytes.NewReader(data)
	}
	return ParseConfig(r, getenv)
}

// ParseConfig is LoadConfig for an already opened YAML document.
func ParseConfig(r io.Reader, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := configValidate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// first returns the first non-empty value among the named variables.
func first(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := first(getenv, "HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if v := first(getenv, "PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := first(getenv, "CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := first(getenv, "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := first(getenv, "INFERENCE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
	if v := first(getenv, "GIST_RAW_URL"); v != "" {
		cfg.Inference.DiscoveryURL = v
		// A discovery document takes precedence over the built-in default.
		if first(getenv, "INFERENCE_URL") == "" {
			cfg.Inference.BaseURL = ""
		}
	}
	if v := first(getenv, "INFERENCE_TIMEOUT", "COLAB_TIMEOUT"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return ports.NewConfigError("INFERENCE_TIMEOUT", err)
		}
		cfg.Inference.Timeout = d
	}

	if v := first(getenv, "MONGODB_URI", "MONGO_URL"); v != "" {
		if cfg.Mongo == nil {
			cfg.Mongo = &MongoConfig{Database: "tomtat", ConnectTimeout: 10 * time.Second}
		}
		cfg.Mongo.URI = v
	}
	if v := first(getenv, "DB_NAME", "MONGODB_DB"); v != "" && cfg.Mongo != nil {
		cfg.Mongo.Database = v
	}

	if v := first(getenv, "VALKEY_ADDR"); v != "" {
		if cfg.Valkey == nil {
			cfg.Valkey = &cache.Config{}
		}
		cfg.Valkey.Addr = v
	}
	if v := first(getenv, "VALKEY_PASSWORD"); v != "" && cfg.Valkey != nil {
		cfg.Valkey.Password = v
	}

	if v := first(getenv, "JWT_SECRET_KEY", "JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := first(getenv, "JWT_REFRESH_SECRET_KEY", "JWT_REFRESH_SECRET"); v != "" {
		cfg.Auth.RefreshSecret = v
	}
	if v := first(getenv, "JWT_EXPIRES_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ports.NewConfigError("JWT_EXPIRES_MINUTES", err)
		}
		cfg.Auth.AccessTTL = time.Duration(n) * time.Minute
	}
	if v := first(getenv, "REFRESH_TOKEN_EXPIRES_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ports.NewConfigError("REFRESH_TOKEN_EXPIRES_DAYS", err)
		}
		cfg.Auth.RefreshTTL = time.Duration(n) * 24 * time.Hour
	}

	applyJudgeEnv(&cfg.Judge, getenv)
	return nil
}

// applyJudgeEnv picks the judge provider. JUDGE_PROVIDER wins; otherwise the
// first provider with an API key is used, Gemini first.
func applyJudgeEnv(j *JudgeConfig, getenv func(string) string) {
	keys := map[string]string{
		"google":    first(getenv, "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		"openai":    first(getenv, "OPENAI_API_KEY"),
		"anthropic": first(getenv, "ANTHROPIC_API_KEY"),
	}
	if p := strings.ToLower(first(getenv, "JUDGE_PROVIDER")); p != "" {
		j.Provider = p
	}
	if j.Provider == "" {
		for _, p := range []string{"google", "openai", "anthropic"} {
			if keys[p] != "" {
				j.Provider = p
				break
			}
		}
	}
	if j.APIKey == "" {
		j.APIKey = keys[j.Provider]
	}
	if v := first(getenv, "JUDGE_MODEL"); v != "" {
		j.Model = v
	}
}

// parseSeconds accepts a Go duration ("90s") or a bare number of seconds.
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
