package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "CAIROS"
	defaultHTTPAddress     = ":3000"
	defaultDatabasePath    = "cairos.db"
	defaultRequestTimeout  = 30 * time.Second
	defaultUpstreamTimeout = 20 * time.Second
	defaultLedgerTTL       = 10 * time.Minute
	defaultCookieName      = "cairos_session"
	defaultRateLimitRPS    = 5.0
	defaultRateLimitBurst  = 20
)

// GitHubConfig holds the OAuth app registration. The URL overrides exist for
// GitHub Enterprise and for tests.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// Config holds server configuration.
type Config struct {
	HTTPAddress     string
	RequestTimeout  time.Duration
	DBPath          string
	GitHub          GitHubConfig
	UpstreamTimeout time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LedgerTTL       time.Duration
	CORSOrigins     []string
	RateLimitRPS    float64
	RateLimitBurst  int
	CookieName      string
	CookieSecure    bool
	LogLevel        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on v. Every key can be
// set from the environment as CAIROS_<KEY> with dots replaced by underscores.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("http.request_timeout", defaultRequestTimeout)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("github.callback_url", "")
	v.SetDefault("github.auth_url", "")
	v.SetDefault("github.token_url", "")
	v.SetDefault("github.api_url", "")
	v.SetDefault("upstream.timeout", defaultUpstreamTimeout)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ledger.ttl", defaultLedgerTTL)
	v.SetDefault("cors.origins", "")
	v.SetDefault("ratelimit.rps", defaultRateLimitRPS)
	v.SetDefault("ratelimit.burst", defaultRateLimitBurst)
	v.SetDefault("session.cookie_name", defaultCookieName)
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("log.level", "")
}

// LoadConfig reads configuration from v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddress:    v.GetString("http.address"),
		RequestTimeout: v.GetDuration("http.request_timeout"),
		DBPath:         v.GetString("database.path"),
		GitHub: GitHubConfig{
			ClientID:     v.GetString("github.client_id"),
			ClientSecret: v.GetString("github.client_secret"),
			CallbackURL:  v.GetString("github.callback_url"),
			AuthURL:      v.GetString("github.auth_url"),
			TokenURL:     v.GetString("github.token_url"),
			APIURL:       v.GetString("github.api_url"),
		},
		UpstreamTimeout: v.GetDuration("upstream.timeout"),
		RedisAddr:       v.GetString("redis.addr"),
		RedisPassword:   v.GetString("redis.password"),
		RedisDB:         v.GetInt("redis.db"),
		LedgerTTL:       v.GetDuration("ledger.ttl"),
		CORSOrigins:     stringList(v.Get("cors.origins")),
		RateLimitRPS:    v.GetFloat64("ratelimit.rps"),
		RateLimitBurst:  v.GetInt("ratelimit.burst"),
		CookieName:      v.GetString("session.cookie_name"),
		CookieSecure:    v.GetBool("session.cookie_secure"),
		LogLevel:        v.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringList accepts a list from a config file or a comma separated string
// from the environment.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.GitHub.ClientID) == "" {
		return fmt.Errorf("github.client_id is required (CAIROS_GITHUB_CLIENT_ID)")
	}
	if strings.TrimSpace(c.GitHub.ClientSecret) == "" {
		return fmt.Errorf("github.client_secret is required (CAIROS_GITHUB_CLIENT_SECRET)")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must not be negative")
	}
	for _, o := range c.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("cors origin %q must start with http:// or https://", o)
		}
	}
	return nil
}
