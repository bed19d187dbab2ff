package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis        RedisConfig
	Gateway      GatewayConfig
	Provisioning ProvisioningConfig
	Recovery     RecoveryConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type GatewayConfig struct {
	Provider  string
	APIKey    string
	AccountID string
	BaseURL   string
	Timeout   time.Duration
}

type ProvisioningConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// RecoveryConfig drives the sweep that retries or abandons stale PENDING orders.
type RecoveryConfig struct {
	Enabled      bool
	Interval     time.Duration
	BatchSize    int
	QuietPeriod  time.Duration
	AbandonAfter time.Duration
	Jobs         []string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "panelbilling"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "panel"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			Provider:  strings.ToLower(getenv("GATEWAY_PROVIDER", "stripe")),
			APIKey:    strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
			AccountID: strings.TrimSpace(getenv("GATEWAY_ACCOUNT_ID", "")),
			BaseURL:   strings.TrimSpace(getenv("GATEWAY_BASE_URL", "https://api.stripe.com")),
			Timeout:   getenvDuration("GATEWAY_TIMEOUT", 12*time.Second),
		},
		Provisioning: ProvisioningConfig{
			BaseURL: strings.TrimSpace(getenv("PROVISIONING_BASE_URL", "http://localhost:8081")),
			Token:   strings.TrimSpace(getenv("PROVISIONING_TOKEN", "")),
			Timeout: getenvDuration("PROVISIONING_TIMEOUT", 20*time.Second),
		},
		Recovery: RecoveryConfig{
			Enabled:      getenvBool("RECOVERY_ENABLED", true),
			Interval:     getenvDuration("RECOVERY_INTERVAL", time.Minute),
			BatchSize:    getenvInt("RECOVERY_BATCH_SIZE", 50),
			QuietPeriod:  getenvDuration("RECOVERY_QUIET_PERIOD", 10*time.Minute),
			AbandonAfter: getenvDuration("RECOVERY_ABANDON_AFTER", 24*time.Hour),
			Jobs:         getenvList("RECOVERY_JOBS"),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
