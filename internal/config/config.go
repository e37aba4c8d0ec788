// config - источник загрузки конфигурации для taskboard-gateway.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Errors    ErrorsConfig    `yaml:"errors"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig - общий дедлайн входящего запроса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"15s"`
}

// HTTPConfig - публичный REST-сервер шлюза.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50090"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// BackendConfig - REST-бэкенд, в который проксируются запросы.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"BACKEND_URL" env-required:"true"`
	Timeout time.Duration `yaml:"timeout"  env:"BACKEND_TIMEOUT" env-default:"10s"`
}

// AuthConfig - проверка access-токенов и параметры cookie.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"     env:"JWT_SECRET" env-required:"true"`
	Issuer        string        `yaml:"issuer"         env:"JWT_ISSUER"`
	AccessCookie  string        `yaml:"access_cookie"  env:"ACCESS_COOKIE"  env-default:"accessToken"`
	RefreshCookie string        `yaml:"refresh_cookie" env:"REFRESH_COOKIE" env-default:"refreshToken"`
	AccessTTL     time.Duration `yaml:"access_ttl"     env:"ACCESS_TTL"     env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"    env:"REFRESH_TTL"    env-default:"168h"`
}

// RateLimitConfig - ограничение частоты для login/register/refresh.
// Пустой RedisURL - лимитер в памяти процесса.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"   env:"RATE_LIMIT_ENABLED" env-default:"true"`
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	Limit    int           `yaml:"limit"     env:"RATE_LIMIT"         env-default:"20"`
	Window   time.Duration `yaml:"window"    env:"RATE_LIMIT_WINDOW"  env-default:"1m"`

	// TrustedProxies - адреса/CIDR балансировщиков, чьему X-Forwarded-For
	// можно верить. Пусто - ключ лимита только по адресу соединения.
	TrustedProxies []string `yaml:"trusted_proxies" env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// ErrorsConfig - пакетная отправка классифицированных ошибок.
// Пустой ReportURL - батчи только логируются.
type ErrorsConfig struct {
	ReportURL     string        `yaml:"report_url"     env:"ERRORS_REPORT_URL"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"ERRORS_FLUSH_INTERVAL" env-default:"30s"`
}

// SecureCookies - флаг Secure включён везде, кроме локальной разработки.
func (c *Config) SecureCookies() bool { return c.Env != EnvLocal }

// VerboseErrors - сырые детали ошибок пишутся в лог везде, кроме prod.
func (c *Config) VerboseErrors() bool { return c.Env != EnvProd }

// MustLoad - паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

// Load читает конфигурацию и проверяет её.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url %q: want absolute http(s) URL", c.Backend.BaseURL)
	}

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("env %q: want one of %s, %s, %s", c.Env, EnvLocal, EnvDev, EnvProd)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("rate_limit: limit and window must be positive")
	}

	for _, p := range c.RateLimit.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("rate_limit.trusted_proxies: %q is neither an IP nor a CIDR", p)
		}
	}

	return nil
}
