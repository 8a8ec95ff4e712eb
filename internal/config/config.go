// Package config provides configuration management for the wpt-sync core.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultStabilityCount is used when gecko.try.stability_count is absent
// or malformed in the loaded config.
const DefaultStabilityCount = 5

// Config holds the recognized options from spec.md §6.
type Config struct {
	// Integration maps integration-repo-name -> URL (normalized to https).
	Integration map[string]string `mapstructure:"integration"`
	// Landing is the URL of the landing repo.
	Landing string `mapstructure:"landing"`
	// MaxTests truncates the fuzzy test-path selection when set.
	MaxTests *int `mapstructure:"max_tests"`
	// StabilityCount is the stability-run rebuild count; falls back to
	// DefaultStabilityCount on parse failure.
	StabilityCount int `mapstructure:"stability_count"`
	// Root is the base directory for on-disk state (logs, worktrees).
	Root string `mapstructure:"root"`
	// TryLogs is the relative path (under Root) where try-push logs land.
	TryLogs string `mapstructure:"try_logs"`
	// ReportContext is this system's own CI status context, ignored on
	// inbound status events to prevent self-feedback (spec §4.1, §6).
	ReportContext string `mapstructure:"report_context"`
}

// Default returns the built-in defaults, matching spec.md §6/§7.
func Default() *Config {
	return &Config{
		Integration:    map[string]string{},
		StabilityCount: DefaultStabilityCount,
		Root:           ".",
		TryLogs:        "try_logs",
		ReportContext:  "upstream/gecko",
	}
}

// Load reads configuration from path (YAML) via viper, overlaying it on
// Default(). Missing files are not an error; malformed stability_count
// falls back to DefaultStabilityCount rather than failing the load.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if sub := v.Sub("sync"); sub != nil {
		if m := sub.GetStringMapString("integration"); len(m) > 0 {
			cfg.Integration = normalizeIntegrationURLs(m)
		}
		if l := sub.GetString("landing"); l != "" {
			cfg.Landing = l
		}
	}

	if v.IsSet("gecko.try.max-tests") {
		n := v.GetInt("gecko.try.max-tests")
		cfg.MaxTests = &n
	}

	if v.IsSet("gecko.try.stability_count") {
		n := v.GetInt("gecko.try.stability_count")
		if n <= 0 {
			n = DefaultStabilityCount
		}
		cfg.StabilityCount = n
	}

	if r := v.GetString("root"); r != "" {
		cfg.Root = r
	}
	if tl := v.GetString("paths.try_logs"); tl != "" {
		cfg.TryLogs = tl
	}
	if rc := v.GetString("report_context"); rc != "" {
		cfg.ReportContext = rc
	}

	return cfg, nil
}

// normalizeIntegrationURLs forces scheme https on every mapped URL, per spec.md §6.
func normalizeIntegrationURLs(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for name, rawURL := range raw {
		out[name] = normalizeHTTPS(rawURL)
	}
	return out
}

func normalizeHTTPS(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Scheme == "" {
		return "https://" + strings.TrimPrefix(rawURL, "//")
	}
	u.Scheme = "https"
	return u.String()
}
