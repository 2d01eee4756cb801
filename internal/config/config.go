// Package config loads astrotask's environment into one immutable
// value, constructed once at facade creation (spec §9, "Global
// configuration"). It is grounded on the teacher's internal/config,
// which uses github.com/spf13/viper with the same file-search
// precedence and env-var binding; the teacher keeps viper behind a
// package-level singleton, which the spec's Design Notes explicitly
// call out as complicating testing. Astrotask keeps viper as the
// loading mechanism but returns a plain Config value and never stores
// viper itself in a package variable.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is astrotask's fully-resolved configuration. Every field here
// corresponds to an environment variable named in spec §6 or a
// documented default; once Load returns, nothing in the process reads
// the environment again.
type Config struct {
	// DatabaseURI is the store's connection string (DATABASE_URI).
	// Defaults to "sqlite://./astrotask.db".
	DatabaseURI string
	// Verbose raises logging to Debug (DB_VERBOSE).
	Verbose bool
	// Encrypted is a configuration hook only; no in-process encryption
	// is implemented (spec §9 Open Question). Left as a pass-through so
	// an embedder-supplied encrypted SQL VFS could consume it later.
	Encrypted bool
	// LockTimeout is handed to the SQLite connection as its busy
	// timeout: how long a statement waits on a locked database before
	// failing. Acquiring the process lock file does not wait on it.
	LockTimeout time.Duration
	// Actor stamps the identity recorded on events the core does not
	// itself attribute to a specific caller.
	Actor string
}

const envPrefix = "ASTROTASK"

// defaults centralizes every fallback value so Load and tests agree on
// what "unset" means.
var defaults = map[string]interface{}{
	"database_uri": "sqlite://./astrotask.db",
	"verbose":      false,
	"encrypted":    false,
	"lock_timeout": "30s",
	"actor":        "",
}

// Load resolves Config from, in increasing precedence: the documented
// defaults, a project-local .astrotask/config.yaml (searched by walking
// up from the working directory), then environment variables prefixed
// ASTROTASK_ (plus the unprefixed DATABASE_URI, DB_VERBOSE and
// DB_ENCRYPTED), then overrides (e.g. parsed CLI flags; nil is fine).
func Load(overrides map[string]interface{}) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configPath, ok := findProjectConfig(); ok {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database_uri", "ASTROTASK_DATABASE_URI", "DATABASE_URI")
	_ = v.BindEnv("verbose", "ASTROTASK_VERBOSE", "DB_VERBOSE")
	_ = v.BindEnv("encrypted", "ASTROTASK_ENCRYPTED", "DB_ENCRYPTED")

	for key, val := range overrides {
		v.Set(key, val)
	}

	lockTimeout, err := time.ParseDuration(v.GetString("lock_timeout"))
	if err != nil {
		lockTimeout = 30 * time.Second
	}

	return Config{
		DatabaseURI: v.GetString("database_uri"),
		Verbose:     v.GetBool("verbose"),
		Encrypted:   v.GetBool("encrypted"),
		LockTimeout: lockTimeout,
		Actor:       v.GetString("actor"),
	}, nil
}

// findProjectConfig walks up from the working directory looking for
// .astrotask/config.yaml, mirroring the teacher's .beads/config.yaml
// search in internal/config.Initialize.
func findProjectConfig() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := cwd; ; {
		candidate := filepath.Join(dir, ".astrotask", "config.yaml")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
