package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./editorlogs")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.communityId", "")

	viper.SetDefault("db.type", "sqlite")
	viper.SetDefault("db.sqlitePath", "./editcore.db")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "editcore")

	viper.SetDefault("autosave.debounceMs", 2000)
	viper.SetDefault("autosave.maxRetries", 3)
	viper.SetDefault("autosave.mergePending", false)

	viper.SetDefault("snap.tolerance", 8)
	viper.SetDefault("history.maxDepth", 100)
	viper.SetDefault("netmon.probeIntervalSec", 30)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "editcore-metrics")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("devsync.enabled", false)
	viper.SetDefault("devsync.url", "ws://localhost:5001/devsync")
	viper.SetDefault("devsync.secret", "")

	viper.SetConfigName("editcore.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDurationMs interprets an integer millisecond key as a duration.
func GetDurationMs(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}
