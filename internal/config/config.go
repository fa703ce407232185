// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/javajoker/funnel-etl/internal/utils"
)

type Config struct {
	Environment string         `yaml:"environment"`
	API         APIConfig      `yaml:"api"`
	Database    DatabaseConfig `yaml:"database"`
	Lake        LakeConfig     `yaml:"lake"`
	AWS         AWSConfig      `yaml:"aws"`
	Funnel      FunnelConfig   `yaml:"funnel"`
	Load        LoadConfig     `yaml:"load"`
	Log         LogConfig      `yaml:"log"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Report      ReportConfig   `yaml:"report"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	RetryCount int           `yaml:"retry_count" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
	RateLimit  float64       `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 disables
	RateBurst  int           `yaml:"rate_burst" validate:"gte=1"`
	UserAgent  string        `yaml:"user_agent" validate:"required"`

	// MaxRetryWait caps both the backoff and a server supplied Retry-After. 0 disables the cap.
	MaxRetryWait     time.Duration `yaml:"max_retry_wait" validate:"gte=0"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" validate:"gte=0"` // 0 disables the limit
}

type DatabaseConfig struct {
	URL          string `yaml:"url" validate:"required"`
	Driver       string `yaml:"driver" validate:"oneof=postgres libpq mysql sqlite"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"gte=0"`
	MaxLifetime  int    `yaml:"max_lifetime" validate:"gte=0"` // in seconds
	LogLevel     string `yaml:"log_level" validate:"oneof=silent error warn info"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type LakeConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
}

type FunnelConfig struct {
	AddToCartProb float64 `yaml:"add_to_cart_prob" validate:"probability"`
	PurchaseProb  float64 `yaml:"purchase_prob" validate:"probability"`
	Seed          uint64  `yaml:"seed"` // 0 seeds from the clock
}

type LoadConfig struct {
	BatchSize int `yaml:"batch_size" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"log_format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	JobName        string `yaml:"job_name" validate:"required"`
}

type ReportConfig struct {
	Dir          string   `yaml:"dir"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Default returns the configuration used when neither a file nor the environment sets a value.
func Default() *Config {
	return &Config{
		Environment: "development",
		API: APIConfig{
			BaseURL:          "https://fakestoreapi.com",
			Timeout:          10 * time.Second,
			RetryCount:       3,
			RetryDelay:       2 * time.Second,
			RateBurst:        1,
			UserAgent:        "EcommerceDataPipeline/1.0",
			MaxRetryWait:     time.Minute,
			MaxResponseBytes: 32 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxLifetime:  3600,
			LogLevel:     "silent",
			AutoMigrate:  true,
		},
		Lake: LakeConfig{
			Path: "data_lake/raw",
		},
		Funnel: FunnelConfig{
			AddToCartProb: 0.6,
			PurchaseProb:  0.5,
		},
		Load: LoadConfig{
			BatchSize: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "logs/pipeline.log",
		},
		Metrics: MetricsConfig{
			JobName: "funnel_etl",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment, in that order.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := Default()
	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()
	config.Database.Driver = config.Database.ResolvedDriver()

	return config, config.Validate()
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.API.BaseURL = strings.TrimRight(getEnv("API_BASE_URL", c.API.BaseURL), "/")
	c.API.Timeout = getEnvAsDuration("API_TIMEOUT", c.API.Timeout)
	c.API.RetryCount = getEnvAsInt("API_RETRY_COUNT", c.API.RetryCount)
	c.API.RetryDelay = getEnvAsDuration("API_RETRY_DELAY", c.API.RetryDelay)
	c.API.MaxRetryWait = getEnvAsDuration("API_MAX_RETRY_WAIT", c.API.MaxRetryWait)
	c.API.MaxResponseBytes = getEnvAsInt64("API_MAX_RESPONSE_BYTES", c.API.MaxResponseBytes)
	c.API.RateLimit = getEnvAsFloat("API_RATE_LIMIT", c.API.RateLimit)
	c.API.RateBurst = getEnvAsInt("API_RATE_BURST", c.API.RateBurst)
	c.API.UserAgent = getEnv("API_USER_AGENT", c.API.UserAgent)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxLifetime = getEnvAsInt("DB_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.LogLevel = getEnv("DB_LOG_LEVEL", c.Database.LogLevel)
	c.Database.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Lake.Path = getEnv("DATA_LAKE_PATH", c.Lake.Path)

	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID)
	c.AWS.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey)
	c.AWS.S3Bucket = getEnv("AWS_S3_BUCKET", c.AWS.S3Bucket)
	c.AWS.S3Prefix = getEnv("AWS_S3_PREFIX", c.AWS.S3Prefix)

	c.Funnel.AddToCartProb = getEnvAsFloat("FUNNEL_ADD_TO_CART_PROB", c.Funnel.AddToCartProb)
	c.Funnel.PurchaseProb = getEnvAsFloat("FUNNEL_PURCHASE_PROB", c.Funnel.PurchaseProb)
	c.Funnel.Seed = getEnvAsUint64("FUNNEL_SEED", c.Funnel.Seed)

	c.Load.BatchSize = getEnvAsInt("LOAD_BATCH_SIZE", c.Load.BatchSize)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
	c.Log.File = getEnvAllowEmpty("LOG_FILE", c.Log.File)

	c.Metrics.PushgatewayURL = getEnv("METRICS_PUSHGATEWAY_URL", c.Metrics.PushgatewayURL)
	c.Metrics.JobName = getEnv("METRICS_JOB_NAME", c.Metrics.JobName)

	c.Report.Dir = getEnv("REPORT_DIR", c.Report.Dir)
	c.Report.KafkaBrokers = getEnvAsSlice("REPORT_KAFKA_BROKERS", c.Report.KafkaBrokers)
	c.Report.KafkaTopic = getEnv("REPORT_KAFKA_TOPIC", c.Report.KafkaTopic)
}

func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", utils.JoinValidationErrors(err))
	}

	if err := c.Database.validateURL(); err != nil {
		return err
	}

	if len(c.Report.KafkaBrokers) > 0 && c.Report.KafkaTopic == "" {
		return fmt.Errorf("REPORT_KAFKA_TOPIC is required when REPORT_KAFKA_BROKERS is set")
	}

	if c.AWS.S3Bucket != "" && c.AWS.Region == "" {
		return fmt.Errorf("AWS_REGION is required when AWS_S3_BUCKET is set")
	}

	return nil
}

// EnsureDirectories creates the data lake, log and report directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Lake.Path}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}
	if c.Report.Dir != "" {
		dirs = append(dirs, c.Report.Dir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty treats a variable that is set but empty as an explicit empty value.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or a plain number of seconds ("10").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
