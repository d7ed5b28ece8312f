package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for structured overrides, e.g. CONTRACTGATE_UPSTREAM__TIMEOUT=5s.
const EnvPrefix = "CONTRACTGATE_"

// DefaultVerifyURL is the reCAPTCHA verification endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Documents DocumentsConfig `yaml:"documents"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the connection address identifies the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// BackendConfig points at the workflow automation webhooks.
// Empty URLs are allowed at startup and reported per request.
type BackendConfig struct {
	ContractURL string `yaml:"contract_url" validate:"omitempty,url"`
	ApproveURL  string `yaml:"approve_url" validate:"omitempty,url"`
	APIKey      string `yaml:"api_key"`
}

type CaptchaConfig struct {
	Secret    string `yaml:"secret"`
	SiteKey   string `yaml:"site_key"`
	VerifyURL string `yaml:"verify_url" validate:"required,url"`
}

type UpstreamConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type DocumentsConfig struct {
	MaxBytes     int64 `yaml:"max_bytes" validate:"gt=0"`
	PreviewChars int   `yaml:"preview_chars" validate:"gt=0"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envAliases maps the flat variable names used by existing deployments to config keys.
var envAliases = map[string]string{
	"PORT":                 "server.port",
	"N8N_CONTRACT_URL":     "backend.contract_url",
	"N8N_APPROVE_WEBHOOK":  "backend.approve_url",
	"N8N_API_KEY":          "backend.api_key",
	"RECAPTCHA_SECRET_KEY": "captcha.secret",
	"RECAPTCHA_SITE_KEY":   "captcha.site_key",
	"LOG_LEVEL":            "log.level",
	"LOG_FORMAT":           "log.format",
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		raw := map[string]interface{}{}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := k.Load(confmap.Provider(raw, "."), nil); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Captcha.VerifyURL == "" {
		cfg.Captcha.VerifyURL = DefaultVerifyURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 15 * time.Second
	}
	if cfg.Documents.MaxBytes == 0 {
		cfg.Documents.MaxBytes = 5 << 20
	}
	if cfg.Documents.PreviewChars == 0 {
		cfg.Documents.PreviewChars = 200
	}
	// An explicit rps: 0 disables the limiter, so only absent keys get defaults.
	if !k.Exists("rate_limit.rps") && !k.Exists("rate_limit.burst") {
		cfg.RateLimit.RPS = 5
		cfg.RateLimit.Burst = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// envKey maps an environment variable to a config key. Unknown or empty
// variables map to "" and are skipped by the provider.
func envKey(name, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	if key, ok := envAliases[name]; ok {
		return key, value
	}
	if strings.HasPrefix(name, EnvPrefix) {
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		return strings.ReplaceAll(key, "__", "."), value
	}
	return "", nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
