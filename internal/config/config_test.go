package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile - утилита записи временного файла конфигурации.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir - смена текущего рабочего каталога с авто-возвратом.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
http:
  host: "0.0.0.0"
  port: "8080"
backend:
  base_url: "http://backend:3001/api"
  timeout: "4s"
auth:
  jwt_secret: "s3cr3t"
  issuer: "taskboard"
  access_ttl: "10m"
rate_limit:
  enabled: true
  redis_url: "redis://localhost:6379/0"
  limit: 5
  window: "30s"
  trusted_proxies: ["10.0.0.0/8", "127.0.0.1"]
errors:
  report_url: "http://collector/errors"
  flush_interval: "5s"
timeouts:
  service: "3s"
`

const minimalYAML = `
env: "dev"
backend:
  base_url: "http://b"
auth:
  jwt_secret: "x"
`

const brokenYAML = `
env: [unclosed
`

func TestHTTPConfig_Addr(t *testing.T) {
	t.Parallel()
	cfg := HTTPConfig{Host: "0.0.0.0", Port: "8080"}
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "8080", cfg.HTTP.Port)
	require.Equal(t, "http://backend:3001/api", cfg.Backend.BaseURL)
	require.Equal(t, 4*time.Second, cfg.Backend.Timeout)
	require.Equal(t, "s3cr3t", cfg.Auth.JWTSecret)
	require.Equal(t, "taskboard", cfg.Auth.Issuer)
	require.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 5, cfg.RateLimit.Limit)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimit.TrustedProxies)
	require.Equal(t, "http://collector/errors", cfg.Errors.ReportURL)
	require.Equal(t, 3*time.Second, cfg.Timeouts.Service)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "min.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "accessToken", cfg.Auth.AccessCookie)
	require.Equal(t, "refreshToken", cfg.Auth.RefreshCookie)
	require.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	require.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	require.Equal(t, 30*time.Second, cfg.Errors.FlushInterval)
	require.True(t, cfg.RateLimit.Enabled)
	require.Empty(t, cfg.RateLimit.RedisURL)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "from_env_path.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
}

func TestLoad_EnvOverlay_OverridesValuesFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	t.Setenv("HTTP_PORT", "18080")
	t.Setenv("BACKEND_URL", "http://other:9000")
	t.Setenv("ACCESS_COOKIE", "at")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "18080", cfg.HTTP.Port)
	require.Equal(t, "http://other:9000", cfg.Backend.BaseURL)
	require.Equal(t, "at", cfg.Auth.AccessCookie)
}

func TestLoad_EnvOnly_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "local")
	t.Setenv("BACKEND_URL", "http://localhost:3001")
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Env)
	require.Equal(t, "http://localhost:3001", cfg.Backend.BaseURL)
}

func TestLoad_EnvOnly_MissingRequired(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	// t.Setenv регистрирует восстановление, Unsetenv убирает переменную целиком:
	// cleanenv считает пустую, но заданную переменную значением.
	t.Setenv("BACKEND_URL", "")
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("BACKEND_URL"))
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "config not found")
}

func TestMustLoad_Panics(t *testing.T) {
	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestDerivedFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env     string
		secure  bool
		verbose bool
	}{
		{EnvLocal, false, true},
		{EnvDev, true, true},
		{EnvProd, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			require.Equal(t, tt.secure, cfg.SecureCookies())
			require.Equal(t, tt.verbose, cfg.VerboseErrors())
		})
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "relative backend url",
			yaml: "env: dev\nbackend:\n  base_url: \"backend:3001\"\nauth:\n  jwt_secret: x\n",
			want: "backend.base_url",
		},
		{
			name: "unknown env",
			yaml: "env: staging\nbackend:\n  base_url: \"http://b\"\nauth:\n  jwt_secret: x\n",
			want: "env",
		},
		{
			name: "bad trusted proxy",
			yaml: "env: dev\nbackend:\n  base_url: \"http://b\"\nauth:\n  jwt_secret: x\nrate_limit:\n  trusted_proxies: [\"lb.internal\"]\n",
			want: "trusted_proxies",
		},
		{
			name: "negative rate limit",
			yaml: "env: dev\nbackend:\n  base_url: \"http://b\"\nauth:\n  jwt_secret: x\nrate_limit:\n  limit: -5\n",
			want: "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "c.yaml", tt.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid config")
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
