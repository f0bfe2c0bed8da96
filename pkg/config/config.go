package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WEX       WEXConfig
	Reconcile ReconcileConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Email     EmailConfig
	PubSub    PubSubConfig
	GigaChat  GigaChatConfig
	Logger    LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string // json or console
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

// WEXConfig describes the fuel-card transaction source.
type WEXConfig struct {
	APIBase       string
	APIKey        string
	WebhookSecret string
	CronSecret    string
	ServiceKey    string
	Timeout       time.Duration
	PollDays      int
}

type ReconcileConfig struct {
	RangeDays       int
	TolDollars      decimal.Decimal
	TolPercent      decimal.Decimal
	LegacyTolerance decimal.Decimal
	Concurrency     int
	Interval        time.Duration
	LockTTL         time.Duration
	ItemTimeout     time.Duration
}

// RedisConfig is optional. An empty Addr disables the sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver          string // gcs or local
	Bucket          string
	CredentialsJSON string
	LocalDir        string
	PublicURL       string
	SigningKey      string
	SignedURLTTL    time.Duration
	MaxUpload       int64
}

type EmailConfig struct {
	PostmarkToken string
	SenderEmail   string
	APIURL        string
	Timeout       time.Duration
}

type PubSubConfig struct {
	ProjectID string
	TopicID   string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for Docker/K8s
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))
	wexTimeout, _ := strconv.Atoi(getEnv("WEX_TIMEOUT_SECONDS", "20"))
	pollDays, _ := strconv.Atoi(getEnv("WEX_POLL_DAYS", "1"))
	rangeDays, _ := strconv.Atoi(getEnv("RECON_RANGE_DAYS", "30"))
	concurrency, _ := strconv.Atoi(getEnv("RECON_CONCURRENCY", "8"))
	lockTTL, _ := strconv.Atoi(getEnv("RECON_LOCK_TTL_SECONDS", "120"))
	itemTimeout, _ := strconv.Atoi(getEnv("RECON_ITEM_TIMEOUT_SECONDS", "10"))
	interval, err := time.ParseDuration(getEnv("RECON_INTERVAL", "15m"))
	if err != nil {
		interval = 15 * time.Minute
	}
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	signedTTL, _ := strconv.Atoi(getEnv("STORAGE_SIGNED_URL_TTL_SECONDS", "3600"))
	maxUpload, _ := strconv.ParseInt(getEnv("STORAGE_MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	emailTimeout, _ := strconv.Atoi(getEnv("EMAIL_TIMEOUT_SECONDS", "10"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "grts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		WEX: WEXConfig{
			APIBase:       getEnv("WEX_API_BASE", ""),
			APIKey:        getEnv("WEX_API_KEY", ""),
			WebhookSecret: getEnv("WEX_WEBHOOK_SECRET", ""),
			CronSecret:    getEnv("CRON_SECRET", ""),
			ServiceKey:    getEnv("SERVICE_KEY", ""),
			Timeout:       time.Duration(wexTimeout) * time.Second,
			PollDays:      pollDays,
		},
		Reconcile: ReconcileConfig{
			RangeDays:       rangeDays,
			TolDollars:      getEnvDecimal("RECON_AMOUNT_TOL_DOLLARS", "1.00"),
			TolPercent:      getEnvDecimal("RECON_AMOUNT_TOL_PERCENT", "5"),
			LegacyTolerance: getEnvDecimal("RECON_LEGACY_TOLERANCE", "0.02"),
			Concurrency:     concurrency,
			Interval:        interval,
			LockTTL:         time.Duration(lockTTL) * time.Second,
			ItemTimeout:     time.Duration(itemTimeout) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Storage: StorageConfig{
			Driver:          getEnv("STORAGE_DRIVER", "local"),
			Bucket:          getEnv("STORAGE_BUCKET", "receipts"),
			CredentialsJSON: getEnv("GCS_CREDENTIALS_JSON", ""),
			LocalDir:        getEnv("STORAGE_LOCAL_DIR", "uploads"),
			PublicURL:       getEnv("STORAGE_PUBLIC_URL", "http://localhost:8080/files"),
			SigningKey:      getEnv("STORAGE_SIGNING_KEY", ""),
			SignedURLTTL:    time.Duration(signedTTL) * time.Second,
			MaxUpload:       maxUpload,
		},
		Email: EmailConfig{
			PostmarkToken: getEnv("POSTMARK_TOKEN", ""),
			SenderEmail:   getEnv("SENDER_EMAIL", "no-reply@example.com"),
			APIURL:        getEnv("POSTMARK_API_URL", "https://api.postmarkapp.com"),
			Timeout:       time.Duration(emailTimeout) * time.Second,
		},
		PubSub: PubSubConfig{
			ProjectID: getEnv("PUBSUB_PROJECT_ID", ""),
			TopicID:   getEnv("PUBSUB_TOPIC_ID", ""),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}
	return d
}
