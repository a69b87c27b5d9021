package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	SMSLog  = "log"
	SMSAMQP = "amqp"
)

// Config holds every setting the server reads from the environment
type Config struct {
	Env        string
	ServerPort string

	StoreDriver string
	DB          DBConfig
	MongoURI    string
	MongoDB     string

	JWTSecret          string
	JWTExpirationHours int64

	OTPTTL            time.Duration
	OTPMaxAttempts    int
	InitialAdminPhone string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitMax    int
	RateLimitWindow time.Duration

	SMSDriver    string
	AMQPURL      string
	AMQPExchange string

	LogLevel string
	LogFile  string
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// Load reads the configuration from environment variables. The caller loads
// .env first.
func Load() (*Config, error) {
	cfg := &Config{
		Env:               strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		ServerPort:        getEnv("SERVER_PORT", "5000"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDB:           getEnv("DB_NAME", "mirchi35"),
		JWTSecret:         os.Getenv("JWT_SECRET_KEY"),
		InitialAdminPhone: strings.TrimSpace(os.Getenv("INITIAL_ADMIN_PHONE")),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		SMSDriver:         strings.ToLower(getEnv("SMS_DRIVER", SMSLog)),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      os.Getenv("AMQP_EXCHANGE"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY not set in environment")
	}

	var err error
	if cfg.JWTExpirationHours, err = getInt64("JWT_EXPIRATION_HOURS", 720); err != nil {
		return nil, err
	}
	ttlMinutes, err := getInt64("OTP_TTL_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.OTPTTL = time.Duration(ttlMinutes) * time.Minute
	if cfg.OTPMaxAttempts, err = getInt("OTP_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	windowMinutes, err := getInt64("RATE_LIMIT_WINDOW_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow = time.Duration(windowMinutes) * time.Minute

	if cfg.JWTExpirationHours <= 0 || cfg.OTPTTL <= 0 || cfg.OTPMaxAttempts <= 0 ||
		cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS, OTP_TTL_MINUTES, OTP_MAX_ATTEMPTS, RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_MINUTES must be positive")
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		db, err := LoadDBConfig()
		if err != nil {
			return nil, err
		}
		cfg.DB = *db
	case StoreMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI not set for STORE_DRIVER=mongo")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (postgres, mongo, memory)", cfg.StoreDriver)
	}

	switch cfg.SMSDriver {
	case SMSLog:
	case SMSAMQP:
		if cfg.AMQPURL == "" {
			return nil, fmt.Errorf("AMQP_URL not set for SMS_DRIVER=amqp")
		}
	default:
		return nil, fmt.Errorf("unknown SMS_DRIVER %q (log, amqp)", cfg.SMSDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	v, err := getInt64(key, int64(fallback))
	return int(v), err
}
