package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadFromEnvWithDefaults(t *testing.T) {
	setMinimalValidConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LLMProvider != "openai" {
		t.Fatalf("unexpected provider: %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != defaultOpenAIModel {
		t.Fatalf("unexpected model default: %q", cfg.LLMModel)
	}
	if cfg.Temperature() != defaultLLMTemperature {
		t.Fatalf("unexpected temperature default: %f", cfg.Temperature())
	}
	if cfg.DBPath != "./tokenladder.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.EscalationTokenCap != 10000 {
		t.Fatalf("unexpected escalation cap default: %d", cfg.EscalationTokenCap)
	}
	if cfg.Escalations() != 3 {
		t.Fatalf("unexpected max escalations default: %d", cfg.Escalations())
	}
	if cfg.MinFragmentChars() != 20 {
		t.Fatalf("unexpected min fragment default: %d", cfg.MinFragmentChars())
	}
	if !reflect.DeepEqual(cfg.EscalationDeltas, []int{500, 1000, 2000}) {
		t.Fatalf("unexpected escalation deltas default: %v", cfg.EscalationDeltas)
	}
	if !cfg.RequireUnbalanced() {
		t.Fatal("expected bracket-balance gate to default on")
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.SlackConfigured() {
		t.Fatal("expected slack to be unconfigured")
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
llm_temperature: 0
db_path: "/tmp/yaml.db"
escalation_token_cap: 8000
escalation_deltas: [250, 750]
require_unbalanced_fragment: false
external_http_timeout_seconds: 75
timezone: "America/Los_Angeles"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("MAX_ESCALATIONS", "2")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey != "yaml-anthropic" {
		t.Fatalf("expected anthropic provider from yaml, got %q", cfg.LLMProvider)
	}
	if cfg.Temperature() != 0 {
		t.Fatalf("expected explicit zero temperature to survive defaults, got %f", cfg.Temperature())
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected db path from env override, got %q", cfg.DBPath)
	}
	if cfg.EscalationTokenCap != 8000 {
		t.Fatalf("expected cap from yaml, got %d", cfg.EscalationTokenCap)
	}
	if cfg.Escalations() != 2 {
		t.Fatalf("expected max escalations from env, got %d", cfg.Escalations())
	}
	if !reflect.DeepEqual(cfg.EscalationDeltas, []int{250, 750}) {
		t.Fatalf("expected deltas from yaml, got %v", cfg.EscalationDeltas)
	}
	if cfg.RequireUnbalanced() {
		t.Fatal("expected explicit false for require_unbalanced_fragment")
	}
	if cfg.ExternalHTTPTimeoutSeconds != 120 {
		t.Fatalf("expected external HTTP timeout from env override, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "openai"
openai_api_key: "sk-test"
max_escalations: 0
min_truncated_fragment_chars: 0
timezone: "UTC"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Escalations() != 0 {
		t.Fatalf("expected explicit max_escalations 0 to survive defaults, got %d", cfg.Escalations())
	}
	if cfg.MinFragmentChars() != 0 {
		t.Fatalf("expected explicit min_truncated_fragment_chars 0 to survive defaults, got %d", cfg.MinFragmentChars())
	}

	t.Setenv("MAX_ESCALATIONS", "0")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Escalations() != 0 {
		t.Fatalf("expected MAX_ESCALATIONS=0 from env, got %d", cfg.Escalations())
	}
}

func TestLoadParsesDeltasFromEnv(t *testing.T) {
	setMinimalValidConfigEnv(t)
	t.Setenv("ESCALATION_DELTAS", "300, 900,2700")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !reflect.DeepEqual(cfg.EscalationDeltas, []int{300, 900, 2700}) {
		t.Fatalf("unexpected deltas: %v", cfg.EscalationDeltas)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "non increasing deltas",
			env:  map[string]string{"ESCALATION_DELTAS": "500,500"},
			want: "escalation_deltas",
		},
		{
			name: "baseline above cap",
			env:  map[string]string{"DEFAULT_BASELINE_TOKENS": "12000"},
			want: "exceeds escalation_token_cap",
		},
		{
			name: "unknown provider",
			env:  map[string]string{"LLM_PROVIDER": "cohere"},
			want: "llm_provider must be",
		},
		{
			name: "digest without slack",
			env:  map[string]string{"DIGEST_SCHEDULE": "0 9 * * 1"},
			want: "digest_schedule requires",
		},
		{
			name: "bad int",
			env:  map[string]string{"MAX_ESCALATIONS": "three"},
			want: "invalid MAX_ESCALATIONS",
		},
		{
			name: "short http timeout",
			env:  map[string]string{"EXTERNAL_HTTP_TIMEOUT_SECONDS": "2"},
			want: "external_http_timeout_seconds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalValidConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("TL_TEST_STR", "value")
	envOverride(&s, "TL_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	empty := "initial"
	t.Setenv("TL_TEST_EMPTY", "")
	envOverrideAllowEmpty(&empty, "TL_TEST_EMPTY")
	if empty != "" {
		t.Fatalf("envOverrideAllowEmpty failed, got %q", empty)
	}

	i := 1
	t.Setenv("TL_TEST_INT", "42")
	if err := envOverrideInt(&i, "TL_TEST_INT"); err != nil {
		t.Fatalf("envOverrideInt error: %v", err)
	}
	if i != 42 {
		t.Fatalf("envOverrideInt failed, got %d", i)
	}
}

func TestLoadConfigInvalidTimezoneFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_TZ_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "openai")
		_ = os.Setenv("OPENAI_API_KEY", "sk-test")
		_ = os.Setenv("TIMEZONE", "Mars/Colony")
		LoadConfig()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestLoadConfigInvalidTimezoneFatal")
	cmd.Env = append(os.Environ(), "TEST_INVALID_TZ_FATAL=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}
