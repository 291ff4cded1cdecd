// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// Ingestion settings
	AllowedOrigins       string `mapstructure:"allowedorigins"`
	ProcessingBatchSize  int    `mapstructure:"processingbatchsize"`
	FlushIntervalSeconds int    `mapstructure:"flushintervalseconds"`
	WriteMaxRetries      int    `mapstructure:"writemaxretries"`
	WriteBackoffMillis   int    `mapstructure:"writebackoffmillis"`

	// Session reconstruction settings
	SessionGapSeconds int `mapstructure:"sessiongapseconds"`

	// File paths
	DatabasePath   string `mapstructure:"storagepath"`
	DatabaseName   string `mapstructure:"-"` // Derived from other settings
	GeoDBPath      string `mapstructure:"geodbpath"`
	CitiesFilePath string `mapstructure:"citiesfilepath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "tally")
		v.SetDefault("appport", "5775")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("allowedorigins", "")
		v.SetDefault("processingbatchsize", 500)
		v.SetDefault("flushintervalseconds", 5)
		v.SetDefault("writemaxretries", 3)
		v.SetDefault("writebackoffmillis", 250)
		v.SetDefault("sessiongapseconds", 1800)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("citiesfilepath", "storage/cities5000.txt")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)

		// Bind environment variables
		v.BindEnv("appname", "TALLY_APP_NAME")
		v.BindEnv("appport", "TALLY_APP_PORT")
		v.BindEnv("environment", "TALLY_ENV")
		v.BindEnv("loglevel", "TALLY_LOG_LEVEL")
		v.BindEnv("privatekey", "TALLY_PRIVATE_KEY")
		v.BindEnv("allowedorigins", "TALLY_ALLOWED_ORIGINS")
		v.BindEnv("processingbatchsize", "TALLY_PROCESSING_BATCH_SIZE")
		v.BindEnv("flushintervalseconds", "TALLY_FLUSH_INTERVAL_SECONDS")
		v.BindEnv("writemaxretries", "TALLY_WRITE_MAX_RETRIES")
		v.BindEnv("writebackoffmillis", "TALLY_WRITE_BACKOFF_MILLIS")
		v.BindEnv("sessiongapseconds", "TALLY_SESSION_GAP_SECONDS")
		v.BindEnv("storagepath", "TALLY_STORAGE_PATH")
		v.BindEnv("geodbpath", "TALLY_GEO_DB_PATH")
		v.BindEnv("citiesfilepath", "TALLY_CITIES_FILE_PATH")
		v.BindEnv("logsdir", "TALLY_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "TALLY_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "TALLY_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "TALLY_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "TALLY_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "TALLY_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "TALLY_DB_MAX_IDLE_CONNS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.ProcessingBatchSize <= 0 {
		return fmt.Errorf("processing batch size must be positive, got %d", c.ProcessingBatchSize)
	}
	if c.FlushIntervalSeconds <= 0 {
		return fmt.Errorf("flush interval must be positive, got %d", c.FlushIntervalSeconds)
	}
	if c.SessionGapSeconds <= 0 {
		return fmt.Errorf("session gap must be positive, got %d", c.SessionGapSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// OriginAllowlist returns the configured origins as a cleaned slice.
// An empty configuration yields an empty slice (all origins rejected).
func (c *Config) OriginAllowlist() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// GetFlushInterval returns the ingestion queue flush interval.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// GetWriteBackoff returns the base backoff between batch write retries.
func (c *Config) GetWriteBackoff() time.Duration {
	return time.Duration(c.WriteBackoffMillis) * time.Millisecond
}

// GetSessionGap returns the inactivity threshold that splits visit sessions.
func (c *Config) GetSessionGap() time.Duration {
	return time.Duration(c.SessionGapSeconds) * time.Second
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return "/"
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10 // Allows concurrent dashboard reads alongside the single writer
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
