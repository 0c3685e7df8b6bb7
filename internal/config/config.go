package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/model"
)

// SingleCore selects Poll instead of PollWithCores.
const SingleCore = -1

// Config carries runtime options for procmon.
type Config struct {
	Interval    time.Duration
	Scopes      []model.ScopeKind
	Cores       int
	JSON        bool
	JSONStream  bool
	MetricsAddr string
	Burn        int
	LogLevel    slog.Level
}

func Default() Config {
	return Config{
		Interval:    time.Second,
		Scopes:      []model.ScopeKind{model.ScopeProcess, model.ScopeThread, model.ScopeChildren},
		Cores:       SingleCore,
		JSON:        false,
		JSONStream:  false,
		MetricsAddr: "",
		Burn:        0,
		LogLevel:    slog.LevelInfo,
	}
}

// FromFlags parses flags and environment overrides. Environment values win
// over flags, matching how the binary is configured under a supervisor.
func FromFlags(args []string) (Config, error) {
	cfg := Default()
	var scopes, level string
	fs := flag.NewFlagSet("procmon", flag.ContinueOnError)
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "refresh interval")
	fs.StringVar(&scopes, "scope", "process,thread,children", "comma-separated scopes: process|thread|children")
	fs.IntVar(&cfg.Cores, "cores", cfg.Cores, "cores to measure against: -1 single core, 0 all detected, N")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "output one-shot JSON and exit")
	fs.BoolVar(&cfg.JSONStream, "json-stream", cfg.JSONStream, "stream NDJSON until interrupted")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.IntVar(&cfg.Burn, "burn", cfg.Burn, "run N busy goroutines")
	fs.StringVar(&level, "log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if v := os.Getenv("PROCMON_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Interval = parsed
		} else if parsed, err2 := time.ParseDuration(v + "s"); err2 == nil {
			cfg.Interval = parsed
		} else {
			return cfg, fmt.Errorf("PROCMON_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("PROCMON_SCOPE"); v != "" {
		scopes = v
	}
	if v := os.Getenv("PROCMON_CORES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("PROCMON_CORES: %w", err)
		}
		cfg.Cores = n
	}
	if v := os.Getenv("PROCMON_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PROCMON_LOG_LEVEL"); v != "" {
		level = v
	}

	parsed, err := ParseScopes(scopes)
	if err != nil {
		return cfg, err
	}
	cfg.Scopes = parsed
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return cfg, fmt.Errorf("log level: %w", err)
	}
	return cfg, cfg.Validate()
}

// ParseScopes splits a comma list into scopes, dropping duplicates.
func ParseScopes(s string) ([]model.ScopeKind, error) {
	var out []model.ScopeKind
	seen := make(map[model.ScopeKind]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := model.ParseScope(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, model.InvalidArgument("parse scopes", "no scope selected")
	}
	return out, nil
}

// Validate rejects option combinations the sampler cannot run.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return model.InvalidArgument("config", fmt.Sprintf("interval must be positive, got %s", c.Interval))
	}
	if c.Cores < SingleCore {
		return model.InvalidArgument("config", fmt.Sprintf("cores must be >= -1, got %d", c.Cores))
	}
	if c.Burn < 0 {
		return model.InvalidArgument("config", fmt.Sprintf("burn must be >= 0, got %d", c.Burn))
	}
	if c.JSON && c.JSONStream {
		return model.InvalidArgument("config", "-json and -json-stream are exclusive")
	}
	return nil
}
