package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	NormalizeArithmetic = "arithmetic"
	NormalizeLLM        = "llm"
)

type Config struct {
	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	LLMConcurrency    int    `yaml:"llm_concurrency"`
	LLMMaxRetries     int    `yaml:"llm_max_retries"`
	LLMRetryBackoffMS int    `yaml:"llm_retry_backoff_ms"`
	// Optional prompt overrides; the built-in prompts are used when empty.
	LLMExtractionPromptPath    string `yaml:"llm_extraction_prompt_path"`
	LLMNormalizationPromptPath string `yaml:"llm_normalization_prompt_path"`
	GeminiAPIKey               string `yaml:"gemini_api_key"`
	AnthropicAPIKey            string `yaml:"anthropic_api_key"`
	OpenAIAPIKey               string `yaml:"openai_api_key"`

	NormalizeMode string `yaml:"normalize_mode"`
	StrictRanges  bool   `yaml:"strict_ranges"`

	TrialsDataPath             string `yaml:"trials_data_path"`
	DBPath                     string `yaml:"db_path"`
	ExportOutputDir            string `yaml:"export_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	ScheduleSheetName  string `yaml:"schedule_sheet_name"`
	ScheduleHeaderSkip int    `yaml:"schedule_header_skip"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	WatchSchedule     string `yaml:"watch_schedule"`
	WatchBaselinePath string `yaml:"watch_baseline_path"`
	WatchCurrentPath  string `yaml:"watch_current_path"`
	Timezone          string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads config.yaml (or path, or $CONFIG_PATH), applies env
// overrides and defaults, and validates. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if path != "" {
		configPath = path
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	} else if path != "" {
		return cfg, fmt.Errorf("reading %s: %w", configPath, err)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	if err := envOverrideInt(&cfg.LLMConcurrency, "LLM_CONCURRENCY"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.LLMRetryBackoffMS, "LLM_RETRY_BACKOFF_MS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.LLMExtractionPromptPath, "LLM_EXTRACTION_PROMPT_PATH")
	envOverride(&cfg.LLMNormalizationPromptPath, "LLM_NORMALIZATION_PROMPT_PATH")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.NormalizeMode, "NORMALIZE_MODE")
	envOverrideBool(&cfg.StrictRanges, "STRICT_RANGES")
	envOverride(&cfg.TrialsDataPath, "TRIALS_DATA_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportOutputDir, "EXPORT_OUTPUT_DIR")
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.ScheduleSheetName, "SCHEDULE_SHEET_NAME")
	if err := envOverrideInt(&cfg.ScheduleHeaderSkip, "SCHEDULE_HEADER_SKIP"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.WatchSchedule, "WATCH_SCHEDULE")
	envOverride(&cfg.WatchBaselinePath, "WATCH_BASELINE_PATH")
	envOverride(&cfg.WatchCurrentPath, "WATCH_CURRENT_PATH")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "gemini"
	}
	if cfg.LLMConcurrency == 0 {
		cfg.LLMConcurrency = 4
	}
	if cfg.LLMMaxRetries == 0 {
		cfg.LLMMaxRetries = 3
	}
	if cfg.LLMRetryBackoffMS == 0 {
		cfg.LLMRetryBackoffMS = 500
	}
	if cfg.NormalizeMode == "" {
		cfg.NormalizeMode = NormalizeArithmetic
	}
	if cfg.TrialsDataPath == "" {
		cfg.TrialsDataPath = "./clinical_trials_data_filtered.csv"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./trialdesk.db"
	}
	if cfg.ExportOutputDir == "" {
		cfg.ExportOutputDir = "./exports"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.ScheduleSheetName == "" {
		cfg.ScheduleSheetName = "Current AMP BL NominalFY25$"
	}
	if cfg.ScheduleHeaderSkip == 0 {
		cfg.ScheduleHeaderSkip = 3
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	switch cfg.LLMProvider {
	case "gemini", "anthropic", "openai":
	default:
		return cfg, fmt.Errorf("llm_provider must be 'gemini', 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}
	switch cfg.NormalizeMode {
	case NormalizeArithmetic, NormalizeLLM:
	default:
		return cfg, fmt.Errorf("normalize_mode must be '%s' or '%s', got '%s'", NormalizeArithmetic, NormalizeLLM, cfg.NormalizeMode)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.LLMConcurrency < 1 {
		return cfg, fmt.Errorf("invalid llm_concurrency '%d': must be >= 1", cfg.LLMConcurrency)
	}
	if cfg.LLMMaxRetries < 0 {
		return cfg, fmt.Errorf("invalid llm_max_retries '%d': must be >= 0", cfg.LLMMaxRetries)
	}
	if cfg.LLMRetryBackoffMS < 0 {
		return cfg, fmt.Errorf("invalid llm_retry_backoff_ms '%d': must be >= 0", cfg.LLMRetryBackoffMS)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return cfg, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.ScheduleHeaderSkip < 0 {
		return cfg, fmt.Errorf("invalid schedule_header_skip '%d': must be >= 0", cfg.ScheduleHeaderSkip)
	}
	// Only the watch command needs a schedule.
	if cfg.WatchSchedule != "" {
		if _, err := ParseWatchSchedule(cfg.WatchSchedule); err != nil {
			return cfg, fmt.Errorf("invalid watch_schedule '%s': %w", cfg.WatchSchedule, err)
		}
	}
	for _, p := range []struct{ key, path string }{
		{"llm_extraction_prompt_path", cfg.LLMExtractionPromptPath},
		{"llm_normalization_prompt_path", cfg.LLMNormalizationPromptPath},
	} {
		if p.path == "" {
			continue
		}
		if _, err := os.Stat(p.path); err != nil {
			return cfg, fmt.Errorf("invalid %s '%s': %w", p.key, p.path, err)
		}
	}

	return cfg, nil
}

// ValidateLLM checks the credential for the selected provider. Only commands
// that call the model need it.
func (c Config) ValidateLLM() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.LLMRetryBackoffMS) * time.Millisecond
}

// ParseWatchSchedule parses a standard 5-field cron expression.
func ParseWatchSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
