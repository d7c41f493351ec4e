// Package config loads the generator configuration from an optional YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the CLI and the server need.
type Config struct {
	OutputDir    string        `yaml:"output_dir" validate:"required"`
	Retention    time.Duration `yaml:"retention" validate:"gt=0"`
	ReapInterval time.Duration `yaml:"reap_interval" validate:"gte=0"`
	SaveSource   bool          `yaml:"save_source"`

	ServerAddr  string   `yaml:"server_addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`

	Log    LogConfig    `yaml:"log"`
	LLM    LLMConfig    `yaml:"llm"`
	Render RenderConfig `yaml:"render"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider" validate:"oneof=openai deepseek gemini mock"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key" validate:"required_unless=Provider mock"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type RenderConfig struct {
	Binary  string        `yaml:"binary" validate:"required"`
	DPI     int           `yaml:"dpi" validate:"gte=0,lte=1200"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Default returns the built-in settings. OutputDir and the API key have no default.
func Default() *Config {
	return &Config{
		Retention:  time.Hour,
		SaveSource: true,
		ServerAddr: ":8080",
		Log:        LogConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			Provider:   "gemini",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Render: RenderConfig{
			Binary:  "dot",
			DPI:     200,
			Timeout: 30 * time.Second,
		},
	}
}

// providerKeyEnv names the provider-specific fallback for LLM_API_KEY.
var providerKeyEnv = map[string]string{
	"gemini":   "GOOGLE_API_KEY",
	"openai":   "OPENAI_API_KEY",
	"deepseek": "DEEPSEEK_API_KEY",
}

// defaultModels mirrors generator.DefaultModels; config stays free of generator imports.
var defaultModels = map[string]string{
	"openai":   "gpt-4o-mini",
	"deepseek": "deepseek-chat",
	"gemini":   "gemini-2.0-flash",
	"mock":     "mock",
}

// Load reads .env (if present), then the YAML file at path (if path is not empty), then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envReader
	env.str("OUTPUT_DIR", &c.OutputDir)
	env.duration("RETENTION", &c.Retention)
	env.duration("REAP_INTERVAL", &c.ReapInterval)
	env.boolean("SAVE_SOURCE", &c.SaveSource)
	env.str("SERVER_ADDR", &c.ServerAddr)
	env.list("CORS_ORIGINS", &c.CORSOrigins)

	env.str("LOG_LEVEL", &c.Log.Level)
	env.str("LOG_FORMAT", &c.Log.Format)

	env.str("LLM_PROVIDER", &c.LLM.Provider)
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	env.str("LLM_MODEL", &c.LLM.Model)
	env.str("LLM_BASE_URL", &c.LLM.BaseURL)
	env.float("LLM_TEMPERATURE", &c.LLM.Temperature)
	env.duration("LLM_TIMEOUT", &c.LLM.Timeout)
	env.integer("LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	env.str("LLM_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if name, ok := providerKeyEnv[c.LLM.Provider]; ok {
			env.str(name, &c.LLM.APIKey)
		}
	}

	env.str("DOT_BINARY", &c.Render.Binary)
	env.integer("RENDER_DPI", &c.Render.DPI)
	env.duration("RENDER_TIMEOUT", &c.Render.Timeout)

	return errors.Join(env.errs...)
}

func (c *Config) fillDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModels[c.LLM.Provider]
	}
}

// Validate checks field constraints and reports every violation in one error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

var validate = validator.New()

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldEnv maps struct paths to the variable users set.
var fieldEnv = map[string]string{
	"OutputDir":       "OUTPUT_DIR",
	"Retention":       "RETENTION",
	"ReapInterval":    "REAP_INTERVAL",
	"ServerAddr":      "SERVER_ADDR",
	"Log.Level":       "LOG_LEVEL",
	"Log.Format":      "LOG_FORMAT",
	"LLM.Provider":    "LLM_PROVIDER",
	"LLM.APIKey":      "LLM_API_KEY",
	"LLM.BaseURL":     "LLM_BASE_URL",
	"LLM.Temperature": "LLM_TEMPERATURE",
	"LLM.Timeout":     "LLM_TIMEOUT",
	"LLM.MaxRetries":  "LLM_MAX_RETRIES",
	"Render.Binary":   "DOT_BINARY",
	"Render.DPI":      "RENDER_DPI",
	"Render.Timeout":  "RENDER_TIMEOUT",
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	if env, ok := fieldEnv[field]; ok {
		field = env
	}
	switch e.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt", "gte":
		return fmt.Sprintf("%s must be greater than %s", field, orEqual(e.Tag(), e.Param()))
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func orEqual(tag, param string) string {
	if tag == "gte" {
		return "or equal to " + param
	}
	return param
}

// envReader applies set variables and collects parse errors.
type envReader struct {
	errs []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func (r *envReader) list(key string, dst *[]string) {
	var raw string
	r.str(key, &raw)
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (r *envReader) boolean(key string, dst *bool) {
	r.parse(key, func(v string) error {
		b, err := strconv.ParseBool(v)
		*dst = b
		return err
	})
}

func (r *envReader) integer(key string, dst *int) {
	r.parse(key, func(v string) error {
		n, err := strconv.Atoi(v)
		*dst = n
		return err
	})
}

func (r *envReader) float(key string, dst *float64) {
	r.parse(key, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		*dst = f
		return err
	})
}

func (r *envReader) duration(key string, dst *time.Duration) {
	r.parse(key, func(v string) error {
		d, err := time.ParseDuration(v)
		*dst = d
		return err
	})
}

func (r *envReader) parse(key string, set func(string) error) {
	var raw string
	r.str(key, &raw)
	if raw == "" {
		return
	}
	if err := set(raw); err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s=%q: %w", key, raw, err))
	}
}
