package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
)

// Environment keys read at startup.
const (
	EnvAnswerKey      = "PPLX_KEY"
	EnvJudgeKey       = "GPT4O_MINI_KEY"
	EnvAnswerProvider = "HALLUCHECK_ANSWER_PROVIDER"
	EnvJudgeProvider  = "HALLUCHECK_JUDGE_PROVIDER"
	EnvAnswerModel    = "HALLUCHECK_ANSWER_MODEL"
	EnvJudgeModel     = "HALLUCHECK_JUDGE_MODEL"
	EnvAnswerBaseURL  = "HALLUCHECK_ANSWER_BASE_URL"
	EnvJudgeBaseURL   = "HALLUCHECK_JUDGE_BASE_URL"
)

// DefaultEnvFile is read when --env-file is not given. Its absence is not an
// error.
const DefaultEnvFile = ".env"

// Config is the complete, validated configuration for one run. It is built
// once at startup and handed to each component; nothing reads the
// environment after that.
type Config struct {
	// Mode is the prompting strategy for the whole run.
	Mode domain.Mode `yaml:"mode" validate:"required,evalmode"`
	// DataPath points at a JSONL or YAML dataset. Empty selects the
	// embedded dataset.
	DataPath string `yaml:"data"`
	// Limit restricts the run to the first N questions; zero means all.
	Limit       int     `yaml:"limit" validate:"min=0"`
	Verbose     bool    `yaml:"verbose"`
	NoColor     bool    `yaml:"no_color"`
	Concurrency int     `yaml:"concurrency" validate:"min=1,max=64"`
	Retries     int     `yaml:"retries" validate:"min=0,max=10"`
	RPS         float64 `yaml:"rps" validate:"min=0"`
	MetricsFile string  `yaml:"metrics_file"`
	LogLevel    string  `yaml:"log_level" validate:"oneof=debug info warn error"`

	Answer ProviderConfig `yaml:"answer"`
	Judge  ProviderConfig `yaml:"judge"`
}

// ProviderConfig selects and configures one model endpoint.
type ProviderConfig struct {
	Provider string        `yaml:"provider" validate:"required,llmprovider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"`
	// APIKey only ever comes from the environment.
	APIKey string `yaml:"-" validate:"required"`
}

// DefaultConfig returns the built-in defaults: Perplexity sonar answers,
// OpenAI judging, one question at a time, no retries.
func DefaultConfig() Config {
	return Config{
		Concurrency: 1,
		LogLevel:    "info",
		Answer: ProviderConfig{
			Provider: "perplexity",
			Model:    "sonar",
			Timeout:  60 * time.Second,
		},
		Judge: ProviderConfig{
			Provider: "openai",
			Model:    "gpt-4.1",
			Timeout:  30 * time.Second,
		},
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return ports.NewConfigError("config", fmt.Errorf("failed to read %s: %w", path, err))
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return ports.NewConfigError("config", fmt.Errorf("failed to parse %s: %w", path, err))
	}
	return nil
}

// ApplyEnv overlays values from the environment file and the process
// environment onto cfg. The process environment wins. A missing file is
// only an error when it was named explicitly.
func ApplyEnv(cfg *Config, envFile string, explicit bool) error {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return ports.NewConfigError("env-file", fmt.Errorf("failed to read %s: %w", envFile, err))
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		v, ok := fileVals[key]
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	set(&cfg.Answer.APIKey, EnvAnswerKey)
	set(&cfg.Judge.APIKey, EnvJudgeKey)
	set(&cfg.Answer.Provider, EnvAnswerProvider)
	set(&cfg.Judge.Provider, EnvJudgeProvider)
	set(&cfg.Answer.Model, EnvAnswerModel)
	set(&cfg.Judge.Model, EnvJudgeModel)
	set(&cfg.Answer.BaseURL, EnvAnswerBaseURL)
	set(&cfg.Judge.BaseURL, EnvJudgeBaseURL)
	return nil
}

// envKeyFor maps validator namespaces of secret fields to the environment
// key the user has to set.
var envKeyFor = map[string]string{
	"answer.APIKey": EnvAnswerKey,
	"judge.APIKey":  EnvJudgeKey,
}

// Validate checks cfg and returns the first problem as a *ports.ConfigError
// keyed by the offending setting.
func (c Config) Validate() error {
	v, err := NewConfigValidator()
	if err != nil {
		return err
	}
	return validateWith(v, c)
}

func validateWith(v *validator.Validate, c Config) error {
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ports.NewConfigError("config", err)
	}

	fe := verrs[0]
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	if envKey, ok := envKeyFor[key]; ok {
		return ports.NewConfigError(envKey, ports.ErrConfigNotFound)
	}
	if key == "mode" {
		return ports.NewConfigError(key, fmt.Errorf("%w: %s", domain.ErrInvalidMode, describeFieldError(fe)))
	}
	return ports.NewConfigError(key, fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, describeFieldError(fe)))
}
