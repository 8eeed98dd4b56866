package profile

import (
	"os"
	"strings"
	"testing"
)

func clearEnvVars() {
	vars := []string{
		"SKYROUTE_LOCAL_LLM_BASE_URL",
		"SKYROUTE_LOCAL_LLM_MODEL",
		"SKYROUTE_PROBE_URL",
		"SKYROUTE_PROBE_INTERVAL_SECONDS",
		"SKYROUTE_METRICS_ADDR",
	}
	for _, providerID := range platformKeyProviders {
		vars = append(vars, "SKYROUTE_PLATFORM_KEY_"+strings.ToUpper(providerID))
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.LocalLLMBaseURL != "http://localhost:11434/v1" {
		t.Errorf("LocalLLMBaseURL = %q, want ollama default", p.LocalLLMBaseURL)
	}
	if p.LocalLLMModel != "qwen2.5:3b" {
		t.Errorf("LocalLLMModel = %q, want qwen2.5:3b", p.LocalLLMModel)
	}
	if p.ProbeIntervalSec != 30 {
		t.Errorf("ProbeIntervalSec = %d, want 30", p.ProbeIntervalSec)
	}
	if len(p.PlatformKeys) != 0 {
		t.Errorf("PlatformKeys = %v, want empty", p.PlatformKeys)
	}
}

func TestFromEnv_PlatformKeys(t *testing.T) {
	clearEnvVars()
	os.Setenv("SKYROUTE_PLATFORM_KEY_DEEPSEEK", "sk-platform-deepseek")
	os.Setenv("SKYROUTE_PLATFORM_KEY_ZAI", "platform-zai")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.PlatformKeys["deepseek"] != "sk-platform-deepseek" {
		t.Errorf("PlatformKeys[deepseek] = %q", p.PlatformKeys["deepseek"])
	}
	if p.PlatformKeys["zai"] != "platform-zai" {
		t.Errorf("PlatformKeys[zai] = %q", p.PlatformKeys["zai"])
	}
	if _, ok := p.PlatformKeys["openai"]; ok {
		t.Error("PlatformKeys[openai] should be unset")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	p := &Profile{Mode: "nonsense", Data: dir}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.Mode != "dev" {
		t.Errorf("Mode = %q, want dev fallback", p.Mode)
	}
	if p.DSN == "" {
		t.Error("DSN should default to a file under Data")
	}
	if p.ProbeIntervalSec != 30 {
		t.Errorf("ProbeIntervalSec = %d, want 30", p.ProbeIntervalSec)
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	p := &Profile{Mode: "dev", Data: "/no/such/dir/anywhere"}
	if err := p.Validate(); err == nil {
		t.Error("Validate() should fail for a missing data directory")
	}
}

func TestIsDev(t *testing.T) {
	if (&Profile{Mode: "prod"}).IsDev() {
		t.Error("prod mode should not be dev")
	}
	if !(&Profile{Mode: "dev"}).IsDev() {
		t.Error("dev mode should be dev")
	}
	if !(&Profile{Mode: "demo"}).IsDev() {
		t.Error("demo mode counts as dev")
	}
}
