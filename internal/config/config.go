package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	DefaultEscalationTokenCap  = 10000
	DefaultMaxEscalations      = 3
	DefaultBaselineTokens      = 1000
	DefaultMinFragmentChars    = 20
	DefaultRunConcurrency      = 4
	defaultAnthropicModel      = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel         = "gpt-4o-mini"
	defaultOpenAIBaseURL       = "https://api.openai.com/v1"
	defaultDBPath              = "./tokenladder.db"
	defaultPromptsPath         = "./prompts.yaml"
	defaultLLMTemperature      = 0.2
	minExternalHTTPTimeoutSecs = 5
)

// DefaultEscalationDeltas are offsets added to the original baseline after
// the 1st, 2nd and 3rd truncation.
var DefaultEscalationDeltas = []int{500, 1000, 2000}

type Config struct {
	LLMProvider     string   `yaml:"llm_provider"`
	LLMModel        string   `yaml:"llm_model"`
	LLMTemperature  *float64 `yaml:"llm_temperature"`
	AnthropicAPIKey string   `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string   `yaml:"openai_api_key"`
	OpenAIBaseURL   string   `yaml:"openai_base_url"`

	DBPath      string `yaml:"db_path"`
	PromptsPath string `yaml:"prompts_path"`

	DefaultBaselineTokens int   `yaml:"default_baseline_tokens"`
	EscalationTokenCap    int   `yaml:"escalation_token_cap"`
	EscalationDeltas      []int `yaml:"escalation_deltas"`

	// Pointers so an explicit 0 or false in YAML survives defaulting.
	MaxEscalations            *int  `yaml:"max_escalations"`
	MinTruncatedFragmentChars *int  `yaml:"min_truncated_fragment_chars"`
	RequireUnbalancedFragment *bool `yaml:"require_unbalanced_fragment"`

	RunTimeoutSeconds          int `yaml:"run_timeout_seconds"`
	RunConcurrency             int `yaml:"run_concurrency"`
	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	AlertChannelID string `yaml:"alert_channel_id"`
	DigestSchedule string `yaml:"digest_schedule"`
	Timezone       string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig loads configuration and exits the process when it is invalid.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.PromptsPath, "PROMPTS_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverrideAllowEmpty(&cfg.AlertChannelID, "ALERT_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.DefaultBaselineTokens, "DEFAULT_BASELINE_TOKENS"},
		{&cfg.EscalationTokenCap, "ESCALATION_TOKEN_CAP"},
		{&cfg.RunTimeoutSeconds, "RUN_TIMEOUT_SECONDS"},
		{&cfg.RunConcurrency, "RUN_CONCURRENCY"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, o := range ints {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return err
		}
	}
	if err := envOverrideIntPtr(&cfg.MaxEscalations, "MAX_ESCALATIONS"); err != nil {
		return err
	}
	if err := envOverrideIntPtr(&cfg.MinTruncatedFragmentChars, "MIN_TRUNCATED_FRAGMENT_CHARS"); err != nil {
		return err
	}
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_TEMPERATURE '%s': %w", val, err)
		}
		cfg.LLMTemperature = &parsed
	}
	if val := os.Getenv("REQUIRE_UNBALANCED_FRAGMENT"); val != "" {
		b := strings.EqualFold(val, "true") || val == "1"
		cfg.RequireUnbalancedFragment = &b
	}
	if deltas := os.Getenv("ESCALATION_DELTAS"); deltas != "" {
		cfg.EscalationDeltas = nil
		for _, d := range strings.Split(deltas, ",") {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			parsed, err := strconv.Atoi(d)
			if err != nil {
				return fmt.Errorf("invalid ESCALATION_DELTAS '%s': %w", deltas, err)
			}
			cfg.EscalationDeltas = append(cfg.EscalationDeltas, parsed)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMModel == "" {
		switch cfg.LLMProvider {
		case "openai":
			cfg.LLMModel = defaultOpenAIModel
		default:
			cfg.LLMModel = defaultAnthropicModel
		}
	}
	if cfg.LLMTemperature == nil {
		t := defaultLLMTemperature
		cfg.LLMTemperature = &t
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.PromptsPath == "" {
		cfg.PromptsPath = defaultPromptsPath
	}
	if cfg.DefaultBaselineTokens == 0 {
		cfg.DefaultBaselineTokens = DefaultBaselineTokens
	}
	if cfg.EscalationTokenCap == 0 {
		cfg.EscalationTokenCap = DefaultEscalationTokenCap
	}
	if cfg.MaxEscalations == nil {
		n := DefaultMaxEscalations
		cfg.MaxEscalations = &n
	}
	if len(cfg.EscalationDeltas) == 0 {
		cfg.EscalationDeltas = append([]int(nil), DefaultEscalationDeltas...)
	}
	if cfg.MinTruncatedFragmentChars == nil {
		n := DefaultMinFragmentChars
		cfg.MinTruncatedFragmentChars = &n
	}
	if cfg.RequireUnbalancedFragment == nil {
		on := true
		cfg.RequireUnbalancedFragment = &on
	}
	if cfg.RunConcurrency == 0 {
		cfg.RunConcurrency = DefaultRunConcurrency
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}

	if t := c.Temperature(); t < 0 || t > 2 {
		return fmt.Errorf("invalid llm_temperature '%f': must be between 0 and 2", t)
	}
	if c.DefaultBaselineTokens < 1 {
		return fmt.Errorf("invalid default_baseline_tokens '%d': must be >= 1", c.DefaultBaselineTokens)
	}
	if c.EscalationTokenCap < 1 {
		return fmt.Errorf("invalid escalation_token_cap '%d': must be >= 1", c.EscalationTokenCap)
	}
	if c.DefaultBaselineTokens > c.EscalationTokenCap {
		return fmt.Errorf("default_baseline_tokens %d exceeds escalation_token_cap %d", c.DefaultBaselineTokens, c.EscalationTokenCap)
	}
	if c.Escalations() < 0 {
		return fmt.Errorf("invalid max_escalations '%d': must be >= 0", c.Escalations())
	}
	prev := 0
	for i, d := range c.EscalationDeltas {
		if d <= prev {
			return fmt.Errorf("invalid escalation_deltas %v: entry %d must be greater than %d", c.EscalationDeltas, i, prev)
		}
		prev = d
	}
	if c.MinFragmentChars() < 0 {
		return fmt.Errorf("invalid min_truncated_fragment_chars '%d': must be >= 0", c.MinFragmentChars())
	}
	if c.RunTimeoutSeconds < 0 {
		return fmt.Errorf("invalid run_timeout_seconds '%d': must be >= 0", c.RunTimeoutSeconds)
	}
	if c.RunConcurrency < 1 {
		return fmt.Errorf("invalid run_concurrency '%d': must be >= 1", c.RunConcurrency)
	}
	if c.ExternalHTTPTimeoutSeconds < minExternalHTTPTimeoutSecs {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= %d", c.ExternalHTTPTimeoutSeconds, minExternalHTTPTimeoutSecs)
	}
	if c.DigestSchedule != "" && (c.SlackBotToken == "" || c.AlertChannelID == "") {
		return fmt.Errorf("digest_schedule requires slack_bot_token and alert_channel_id")
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.AlertChannelID != ""
}

func (c Config) Escalations() int {
	if c.MaxEscalations == nil {
		return DefaultMaxEscalations
	}
	return *c.MaxEscalations
}

func (c Config) MinFragmentChars() int {
	if c.MinTruncatedFragmentChars == nil {
		return DefaultMinFragmentChars
	}
	return *c.MinTruncatedFragmentChars
}

func (c Config) RequireUnbalanced() bool {
	return c.RequireUnbalancedFragment == nil || *c.RequireUnbalancedFragment
}

func (c Config) Temperature() float64 {
	if c.LLMTemperature == nil {
		return defaultLLMTemperature
	}
	return *c.LLMTemperature
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
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

func envOverrideIntPtr(field **int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}
