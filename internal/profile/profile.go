package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration for the routing core.
type Profile struct {
	// Mode can be "prod", "dev", or "demo".
	Mode string

	// Data is the data directory (SQLite file lives here).
	Data string

	// DSN is the database source name. Defaults to a file under Data.
	DSN string

	// Local classifier endpoint (OpenAI-compatible, e.g. ollama).
	LocalLLMBaseURL string
	LocalLLMModel   string

	// Reachability probe.
	ProbeURL         string
	ProbeIntervalSec int

	// PlatformKeys maps provider id to the operator-owned API key used on
	// a user's behalf. Loaded from SKYROUTE_PLATFORM_KEY_<PROVIDER> env.
	PlatformKeys map[string]string

	// MetricsAddr is the optional listen address for /metrics.
	MetricsAddr string

	Version string
}

// platformKeyProviders are the providers a platform key can be configured
// for via environment variables.
var platformKeyProviders = []string{"openai", "anthropic", "deepseek", "zai", "siliconflow", "openrouter"}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LocalLLMBaseURL = getEnvOrDefault("SKYROUTE_LOCAL_LLM_BASE_URL", "http://localhost:11434/v1")
	p.LocalLLMModel = getEnvOrDefault("SKYROUTE_LOCAL_LLM_MODEL", "qwen2.5:3b")
	p.ProbeURL = getEnvOrDefault("SKYROUTE_PROBE_URL", "https://www.gstatic.com/generate_204")
	p.ProbeIntervalSec = getEnvOrDefaultInt("SKYROUTE_PROBE_INTERVAL_SECONDS", 30)
	p.MetricsAddr = getEnvOrDefault("SKYROUTE_METRICS_ADDR", "")

	p.PlatformKeys = make(map[string]string)
	for _, providerID := range platformKeyProviders {
		envKey := "SKYROUTE_PLATFORM_KEY_" + strings.ToUpper(providerID)
		if key := os.Getenv(envKey); key != "" {
			p.PlatformKeys[providerID] = key
		}
	}
}

// Validate normalizes and checks the profile.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" && p.Mode != "demo" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		p.DSN = filepath.Join(p.Data, "skyroute_"+p.Mode+".db")
	}
	if p.ProbeIntervalSec <= 0 {
		p.ProbeIntervalSec = 30
	}
	return nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}
