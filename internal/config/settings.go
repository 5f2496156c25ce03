package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper-backed global settings singleton. Should be
// called once at process startup.
//
// Precedence, highest to lowest: env var (UP_*) > config file > default.
// Mirrors the teacher's viper setup in internal/config/config.go, with the
// prefix renamed to this project's.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	if home, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(home, "up", "settings.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
		}
	}

	v.SetEnvPrefix("UP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("lock-timeout", "30s")
	v.SetDefault("keep-shims", false)
	v.SetDefault("verbose", false)
	v.SetDefault("json", false)

	// Versions-list cache.
	v.SetDefault("cache.ttl", "24h")

	// Garbage collection / retention (spec §3 I6, §4.7).
	v.SetDefault("gc.grace-period", "168h") // 7 days
	v.SetDefault("gc.cleanup-after", "720h") // 30 days
	v.SetDefault("retention.max-total", 500)
	v.SetDefault("retention.max-per-workdir", 10)
	v.SetDefault("retention.seconds", int((90 * 24 * time.Hour).Seconds()))

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

func GetBool(key string) bool {
	ensure()
	return v.GetBool(key)
}

func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

// Retention bundles the env_versions/workdir_history retention knobs the
// environment ledger enforces after every commit (spec §3 I6, §4.4 step 5).
type Retention struct {
	MaxTotal      int
	MaxPerWorkdir int
	Seconds       int64
}

func GetRetention() Retention {
	ensure()
	return Retention{
		MaxTotal:      v.GetInt("retention.max-total"),
		MaxPerWorkdir: v.GetInt("retention.max-per-workdir"),
		Seconds:       int64(v.GetInt("retention.seconds")),
	}
}

// Homes resolves the cache and data home directories (spec §6), honoring
// UP_CACHE_HOME / UP_DATA_HOME overrides ahead of the XDG defaults.
type Homes struct {
	Cache string
	Data  string
}

func GetHomes() Homes {
	ensure()
	cache := os.Getenv("UP_CACHE_HOME")
	if cache == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cache = filepath.Join(dir, "up")
		}
	}
	data := os.Getenv("UP_DATA_HOME")
	if data == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			data = filepath.Join(dir, ".local", "share", "up")
		}
	}
	return Homes{Cache: cache, Data: data}
}
