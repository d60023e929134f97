// Package config assembles the Config struct consumed at startup, the
// way the teacher's Options/opt pair is assembled in New(): explicit
// values first, then environment fallbacks, then an optional on-disk
// override file.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lumen-lang/lumen/internal/rtlog"
)

// Config is parsed once at process startup (see cmd/lumen) and threaded
// read-only through every component afterwards.
type Config struct {
	// SearchPath is the module/import search path, from LUMEN_PATH.
	SearchPath []string

	// Unbuffered forces line-unbuffered stdout (-u flag / LUMEN_UNBUFFERED).
	Unbuffered bool

	// StartupScript is sourced before the REPL or script runs, if set.
	StartupScript string

	// MaxVirtualCores bounds the scheduler's worker pool (C6); 0 means
	// the scheduler picks its own default.
	MaxVirtualCores int

	// Verbose enables rtlog debug output.
	Verbose bool
}

const (
	envSearchPath  = "LUMEN_PATH"
	envUnbuffered  = "LUMEN_UNBUFFERED"
	envStartup     = "LUMEN_STARTUP"
	envMaxVCores   = "LUMEN_MAX_VCORES"
	envDebug       = "LUMEN_DEBUG"
	defaultMaxVC   = 4
	hardMaxOSLimit = 10000
)

// fileOverrides is the shape of an optional lumen.yaml consulted after
// environment variables are read but before they're allowed to win:
// explicit env vars always take precedence over the file.
type fileOverrides struct {
	SearchPath      []string `yaml:"search_path"`
	MaxVirtualCores int      `yaml:"max_virtual_cores"`
}

// Load builds a Config from the process environment, optionally merging
// a YAML override file located at path (ignored if path is empty or the
// file does not exist).
func Load(path string) *Config {
	cfg := &Config{MaxVirtualCores: defaultMaxVC}

	if v := os.Getenv(envSearchPath); v != "" {
		cfg.SearchPath = splitPath(v)
	}
	cfg.Unbuffered, _ = strconv.ParseBool(os.Getenv(envUnbuffered))
	cfg.StartupScript = os.Getenv(envStartup)
	cfg.Verbose, _ = strconv.ParseBool(os.Getenv(envDebug))

	if v := os.Getenv(envMaxVCores); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxVirtualCores = n
		}
	}

	if path != "" {
		cfg.mergeFile(path)
	}

	if cfg.MaxVirtualCores > hardMaxOSLimit {
		cfg.MaxVirtualCores = hardMaxOSLimit
	}
	rtlog.SetDebug(cfg.Verbose)
	return cfg
}

func (cfg *Config) mergeFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fo fileOverrides
	if err := yaml.Unmarshal(data, &fo); err != nil {
		rtlog.Warnf("config: ignoring malformed override file %s: %v", path, err)
		return
	}
	if len(cfg.SearchPath) == 0 && len(fo.SearchPath) > 0 {
		cfg.SearchPath = fo.SearchPath
	}
	if os.Getenv(envMaxVCores) == "" && fo.MaxVirtualCores > 0 {
		cfg.MaxVirtualCores = fo.MaxVirtualCores
	}
}

func splitPath(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == os.PathListSeparator {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
