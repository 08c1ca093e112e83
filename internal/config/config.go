// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
)

// Config represents the application configuration.
// Fields without a `default` tag are required.
type Config struct {
	APIName          string `env:"BHAV_API_APP_NAME" default:"Bhavcopy API"`
	APIVersion       string `env:"BHAV_API_APP_VERSION" default:"v1"`
	ServerPort       string `env:"BHAV_API_SERVER_PORT" default:"3007"`
	ServerLogLevel   string `env:"BHAV_API_SERVER_LOG_LEVEL" default:"info"`
	LogFile          string `env:"BHAV_LOG_FILE" default:""`
	PostgresDsn      string `env:"BHAV_PG_DSN"`
	PostgresSchema   string `env:"BHAV_PG_SCHEMA" default:"bhav"`
	PostgresLogLevel string `env:"BHAV_PG_LOG_LEVEL" default:"warn"`
	RedisHost        string `env:"BHAV_REDIS_HOST" default:""`
	RedisPort        string `env:"BHAV_REDIS_PORT" default:"6379"`
	RedisPassword    string `env:"BHAV_REDIS_PASSWORD" default:""`

	DataDir          string        `env:"BHAV_DATA_DIR" default:"./bhavcopy_data"`
	ProfilesFile     string        `env:"BHAV_PROFILES_FILE" default:""`
	HTTPTimeout      time.Duration `env:"BHAV_HTTP_TIMEOUT" default:"30s"`
	RequestInterval  time.Duration `env:"BHAV_REQUEST_INTERVAL" default:"1s"`
	FetchMaxAttempts int           `env:"BHAV_FETCH_MAX_ATTEMPTS" default:"3"`
	FetchBackoffBase time.Duration `env:"BHAV_FETCH_BACKOFF_BASE" default:"1s"`
	FetchMaxBytes    int64         `env:"BHAV_FETCH_MAX_BYTES" default:"268435456"`
	UpsertBatchSize  int           `env:"BHAV_UPSERT_BATCH_SIZE" default:"500"`
	McxBatchSize     int           `env:"BHAV_MCX_BATCH_SIZE" default:"50"`
	ReloadLockTTL    time.Duration `env:"BHAV_RELOAD_LOCK_TTL" default:"15m"`

	CronEnabled    bool   `env:"BHAV_CRON_ENABLED" default:"true"`
	CronSchedule   string `env:"BHAV_CRON_SCHEDULE" default:"30 19 * * 1-5"`
	BackfillDays   int    `env:"BHAV_BACKFILL_DAYS" default:"7"`
	ArchiveBucket  string `env:"BHAV_ARCHIVE_S3_BUCKET" default:""`
	ArchiveRegion  string `env:"BHAV_ARCHIVE_S3_REGION" default:"ap-south-1"`
	ArchivePrefix  string `env:"BHAV_ARCHIVE_S3_PREFIX" default:"bhavcopy"`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	err      error
)

// Get returns the application configuration, loading it on first use
func Get() (*Config, error) {
	once.Do(func() {
		zaplogger.Info(SingleLine)
		zaplogger.Info("Loading Configuration")
		instance, err = Load()
	})
	return instance, err
}

// Load reads .env (if present) and the process environment into a new Config
func Load() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv fills every tagged field from the environment or its default
func (c *Config) loadFromEnv() error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		value, ok := os.LookupEnv(envTag)
		if !ok || value == "" {
			def, hasDefault := field.Tag.Lookup("default")
			if !hasDefault {
				return fmt.Errorf("env variable %s is required but not set", envTag)
			}
			value = def
		}

		if err := setField(v.Field(i), value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envTag, err)
		}
	}

	return nil
}

func setField(f reflect.Value, value string) error {
	if f.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
		return nil
	}

	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// RedisEnabled reports whether a Redis host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// String returns the configuration as a string with secrets masked
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprint(v.Field(i).Interface())

		value = maskSensitiveField(field.Name, value)
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func maskSensitiveField(fieldName, value string) string {
	sensitiveFields := []string{"token", "dsn", "secret", "password"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
