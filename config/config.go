// Package config handles pre-database configuration, such as the location of the database.
// This is used by both rungsd and rungsadmin.
package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

var defaults = map[string]any{
	"listen_address":    ":8080",
	"storage_backend":   BackendPostgres,
	"db_url":            "",
	"sql_connector":     "pgx",
	"sqlite_path":       "rungs.db",
	"redis_url":         "",
	"redis_ttl":         10 * time.Minute,
	"secure_cookies":    false,
	"allowed_origins":   []string{},
	"cache_size":        64,
	"fetch_concurrency": 4,
	"games_ttl":         5 * time.Minute,
	"db_max_conns":      8,
	"user_ttl":          time.Minute,
}

// Init loads ~/.rungs (YAML) if there is one, and lets RUNGS_* environment
// variables override it.
func Init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName(".rungs")
	viper.AddConfigPath(home)
	viper.SetEnvPrefix("rungs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for k, v := range defaults {
		viper.SetDefault(k, v)
		// AutomaticEnv only sees keys viper already knows about when
		// unmarshaling; bind explicitly so every key works.
		_ = viper.BindEnv(k)
	}
	err = viper.ReadInConfig() // ignore error if config file missing
	if err != nil {
		log.Printf("viper can't read config file: %v", err)
	}
	log.Printf("Using storage backend: %s", StorageBackend())
	log.Printf("Using listen address: %s", ListenAddress())
}

func DBURL() string {
	return viper.GetString("db_url")
}

func ListenAddress() string {
	return viper.GetString("listen_address")
}

func SecureCookies() bool {
	return viper.GetBool("secure_cookies")
}

func SQLConnector() string {
	return viper.GetString("sql_connector")
}

// StorageBackend is one of BackendPostgres, BackendSQLite or BackendMemory.
func StorageBackend() string {
	return strings.ToLower(viper.GetString("storage_backend"))
}

func SQLitePath() string {
	return viper.GetString("sqlite_path")
}

// RedisURL is empty when the shared ladder cache is off.
func RedisURL() string {
	return viper.GetString("redis_url")
}

func RedisTTL() time.Duration {
	return viper.GetDuration("redis_ttl")
}

// AllowedOrigins is used for CORS when the site config isn't in a database.
func AllowedOrigins() []string {
	return viper.GetStringSlice("allowed_origins")
}

func CacheSize() int {
	return viper.GetInt("cache_size")
}

func FetchConcurrency() int {
	return viper.GetInt("fetch_concurrency")
}

func GamesTTL() time.Duration {
	return viper.GetDuration("games_ttl")
}

// UserTTL bounds how long a changed user (demoted, say) keeps their old
// identity in this process.
func UserTTL() time.Duration {
	return viper.GetDuration("user_ttl")
}

// DBMaxConns caps the Postgres pool.  Zero means no cap.
func DBMaxConns() int {
	return viper.GetInt("db_max_conns")
}
