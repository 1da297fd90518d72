// Package config resolves run settings from flags, an optional config file,
// the environment and .env, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/pipeline"
	"github.com/FranksOps/reelrank/internal/retry"
	"github.com/FranksOps/reelrank/internal/transport"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the tool.
const EnvPrefix = "REELRANK"

var (
	ErrNoQueries    = errors.New("config: at least one search query is required")
	ErrMissingToken = errors.New("config: api token is required (--token, REELRANK_TOKEN, HIKER_API_TOKEN or HIKER_API_KEY)")
)

// Keys shared by flags, config files and the environment.
const (
	KeyQuery        = "query"
	KeyToken        = "token"
	KeyBaseURL      = "base-url"
	KeyMaxAccounts  = "max-accounts"
	KeyRecentReels  = "recent-reels"
	KeyTopK         = "top-k"
	KeyOutputPrefix = "output-prefix"
	KeyTimeout      = "timeout"
	KeyConcurrency  = "concurrency"
	KeyRetries      = "retries"
	KeyRetryDelay   = "retry-delay"
	KeyErrorLog     = "error-log"
	KeyRPS          = "rps"
	KeyProxyFile    = "proxy-file"
	KeyTLSProfile   = "tls-profile"
	KeyMetricsPort  = "metrics-port"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
)

// Config holds every setting of a pipeline run.
type Config struct {
	Queries      []string      `mapstructure:"query"`
	Token        string        `mapstructure:"token"`
	BaseURL      string        `mapstructure:"base-url"`
	MaxAccounts  int           `mapstructure:"max-accounts"`
	RecentReels  int           `mapstructure:"recent-reels"`
	TopK         int           `mapstructure:"top-k"`
	OutputPrefix string        `mapstructure:"output-prefix"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	Retries      int           `mapstructure:"retries"`
	RetryDelay   time.Duration `mapstructure:"retry-delay"`
	ErrorLog     string        `mapstructure:"error-log"`
	RPS          float64       `mapstructure:"rps"`
	ProxyFile    string        `mapstructure:"proxy-file"`
	TLSProfile   string        `mapstructure:"tls-profile"`
	MetricsPort  int           `mapstructure:"metrics-port"`
	LogLevel     string        `mapstructure:"log-level"`
	LogFormat    string        `mapstructure:"log-format"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyQuery, []string{})
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyBaseURL, hiker.DefaultBaseURL)
	v.SetDefault(KeyMaxAccounts, 200)
	v.SetDefault(KeyRecentReels, 50)
	v.SetDefault(KeyTopK, 10)
	v.SetDefault(KeyOutputPrefix, "outputs/instagram_accounts")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyConcurrency, 10)
	v.SetDefault(KeyRetries, 2)
	v.SetDefault(KeyRetryDelay, time.Second)
	v.SetDefault(KeyErrorLog, "error_log.jsonl")
	v.SetDefault(KeyRPS, 0.0)
	v.SetDefault(KeyProxyFile, "")
	v.SetDefault(KeyTLSProfile, string(transport.ProfileGo))
	v.SetDefault(KeyMetricsPort, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// BindEnv maps REELRANK_* variables onto keys. The token also falls back to
// the variable names used by HikerAPI's own tooling.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindEnv(KeyToken, EnvPrefix+"_TOKEN", "HIKER_API_TOKEN", "HIKER_API_KEY")
}

// ReadFile merges a YAML, TOML or JSON config file into v. An empty path is
// a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}

// Load decodes v into a Config and cleans up the query list.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	c.Queries = cleanQueries(c.Queries)
	c.Token = strings.TrimSpace(c.Token)
	return c, nil
}

func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Validate reports the first setting that would make a run impossible. It
// touches the filesystem: the output directory is created and probed for
// writability and the proxy file must be readable.
func (c Config) Validate() error {
	if len(c.Queries) == 0 {
		return ErrNoQueries
	}
	if c.Token == "" {
		return ErrMissingToken
	}

	switch {
	case c.MaxAccounts < 0:
		return fmt.Errorf("config: %s must be >= 0, got %d", KeyMaxAccounts, c.MaxAccounts)
	case c.RecentReels < 0:
		return fmt.Errorf("config: %s must be >= 0, got %d", KeyRecentReels, c.RecentReels)
	case c.TopK < 0:
		return fmt.Errorf("config: %s must be >= 0, got %d", KeyTopK, c.TopK)
	case c.Concurrency < 1:
		return fmt.Errorf("config: %s must be >= 1, got %d", KeyConcurrency, c.Concurrency)
	case c.Retries < 0:
		return fmt.Errorf("config: %s must be >= 0, got %d", KeyRetries, c.Retries)
	case c.Timeout <= 0:
		return fmt.Errorf("config: %s must be positive, got %s", KeyTimeout, c.Timeout)
	case c.RetryDelay < 0:
		return fmt.Errorf("config: %s must be >= 0, got %s", KeyRetryDelay, c.RetryDelay)
	case c.RPS < 0:
		return fmt.Errorf("config: %s must be >= 0, got %g", KeyRPS, c.RPS)
	case c.MetricsPort < 0 || c.MetricsPort > 65535:
		return fmt.Errorf("config: %s out of range: %d", KeyMetricsPort, c.MetricsPort)
	}

	if _, err := transport.ParseProfile(c.TLSProfile); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.ProxyFile != "" {
		f, err := os.Open(c.ProxyFile)
		if err != nil {
			return fmt.Errorf("config: proxy file: %w", err)
		}
		f.Close()
	}

	if err := probeDir(filepath.Dir(c.OutputPrefix)); err != nil {
		return fmt.Errorf("config: output directory: %w", err)
	}
	return nil
}

func probeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".reelrank-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Pipeline returns the pipeline bounds.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		MaxAccounts: c.MaxAccounts,
		RecentReels: c.RecentReels,
		TopK:        c.TopK,
		Concurrency: c.Concurrency,
	}
}

// RetryPolicy returns the policy shared by every API call.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: c.Retries, Delay: c.RetryDelay}
}
