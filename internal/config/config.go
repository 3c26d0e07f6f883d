// Package config loads clearance-cli settings from config.yaml, a .env file
// and CLEARANCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Guardrail GuardrailConfig `yaml:"guardrail" mapstructure:"guardrail"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Refdata   RefdataConfig   `yaml:"refdata" mapstructure:"refdata"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig configures the generation provider. The reasoner model
// handles extraction and classification; the writer drafts explanations.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ReasonerModel string `yaml:"reasoner_model" mapstructure:"reasoner_model" validate:"required"`
	WriterModel   string `yaml:"writer_model" mapstructure:"writer_model" validate:"required"`
	MaxTokens     int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=256,lte=64000"`
}

// LLMConfig configures call pacing and retry for the generation provider.
type LLMConfig struct {
	RequestsPerMinute int         `yaml:"requests_per_minute" mapstructure:"requests_per_minute" validate:"gte=0,lte=4000"`
	Retry             RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig holds backoff settings shared by the external collaborators.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gtefield=InitialBackoffMs"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=local pdftotext mistral auto"`
	PdfToTextPath  string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey     string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel   string `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralBaseURL string `yaml:"mistral_base_url" mapstructure:"mistral_base_url" validate:"omitempty,url"`
}

// GuardrailConfig holds the limits the generation chains enforce.
type GuardrailConfig struct {
	NumberTolerance     float64 `yaml:"number_tolerance" mapstructure:"number_tolerance" validate:"gte=0,lte=1"`
	ExtractionChars     int     `yaml:"extraction_chars" mapstructure:"extraction_chars" validate:"gt=0"`
	ClassificationChars int     `yaml:"classification_chars" mapstructure:"classification_chars" validate:"gt=0"`
	FixInputChars       int     `yaml:"fix_input_chars" mapstructure:"fix_input_chars" validate:"gt=0"`
	AuditConfidenceCap  float64 `yaml:"audit_confidence_cap" mapstructure:"audit_confidence_cap" validate:"gte=0,lte=1"`
	MaxInputChars       int     `yaml:"max_input_chars" mapstructure:"max_input_chars" validate:"gt=0"`
	SchemaDir           string  `yaml:"schema_dir" mapstructure:"schema_dir"`
}

// ScoringConfig optionally overrides the reference-data risk thresholds.
// All zero means "use the reference table".
type ScoringConfig struct {
	Low      int `yaml:"low" mapstructure:"low" validate:"gte=0,lte=100"`
	Medium   int `yaml:"medium" mapstructure:"medium" validate:"gte=0,lte=100"`
	High     int `yaml:"high" mapstructure:"high" validate:"gte=0,lte=100"`
	Critical int `yaml:"critical" mapstructure:"critical" validate:"gte=0,lte=100"`
}

// IsSet reports whether any threshold was configured.
func (s ScoringConfig) IsSet() bool {
	return s != ScoringConfig{}
}

// RefdataConfig points at an on-disk reference data directory. Empty uses
// the embedded tables.
type RefdataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ExtractConfig configures per-document extraction.
type ExtractConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1,lte=32"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from an optional .env file, the config file and
// the environment. An empty path searches the working directory for
// config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CLEARANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.reasoner_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.writer_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.retry.max_attempts", 3)
	v.SetDefault("llm.retry.initial_backoff_ms", 1000)
	v.SetDefault("llm.retry.max_backoff_ms", 30000)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.mistral_base_url", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("guardrail.number_tolerance", 0.01)
	v.SetDefault("guardrail.extraction_chars", 8000)
	v.SetDefault("guardrail.classification_chars", 5000)
	v.SetDefault("guardrail.fix_input_chars", 4000)
	v.SetDefault("guardrail.audit_confidence_cap", 0.3)
	v.SetDefault("guardrail.max_input_chars", 50000)
	v.SetDefault("guardrail.schema_dir", "")
	v.SetDefault("scoring.low", 0)
	v.SetDefault("scoring.medium", 0)
	v.SetDefault("scoring.high", 0)
	v.SetDefault("scoring.critical", 0)
	v.SetDefault("refdata.dir", "")
	v.SetDefault("extract.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Modes accepted by Validate.
const (
	// ModeOffline covers commands that never call a remote provider.
	ModeOffline = "offline"
	// ModeLLM covers commands that call the generation provider.
	ModeLLM = "llm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks ranges on every section, then the credentials mode needs.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
	}

	if s := c.Scoring; s.IsSet() && (s.Low > s.Medium || s.Medium > s.High || s.High > s.Critical) {
		errs = append(errs, "scoring thresholds must be ordered low <= medium <= high <= critical")
	}

	if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" {
		errs = append(errs, "ocr.mistral_key is required for the mistral provider")
	}

	switch mode {
	case ModeOffline:
	case ModeLLM:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describeFieldError renders a validator failure with the config key path,
// e.g. "guardrail.number_tolerance must satisfy lte=1".
func describeFieldError(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return fmt.Sprintf("%s must satisfy %s", key, rule)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
