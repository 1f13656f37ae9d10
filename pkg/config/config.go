package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Groq     GroqConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Policy   PolicyConfig
	Logger   LoggerConfig
	Debug    bool
}

type LoggerConfig struct {
	Level string
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
	MaxConns int32
	MinConns int32
}

// DSN renders the keyword/value connection string pgx expects.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type GroqConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

type StorageConfig struct {
	UploadDir   string
	MaxFileSize int64
}

type WorkerConfig struct {
	Name           string
	Concurrency    int
	MaxAttempts    int
	LockTTL        time.Duration
	InitialBackoff time.Duration
	RescanInterval time.Duration
	RescanWindow   time.Duration
	RescanMaxScore int
}

// PolicyConfig holds the static validation policy for extracted receipts.
type PolicyConfig struct {
	MaxReceiptAmount string
	MinConfidence    float64
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine; environment variables are used directly
	// (useful for Docker/K8s).

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))
	llmTimeout, _ := strconv.Atoi(getEnv("GROQ_TIMEOUT_SECONDS", "45"))
	temperature, _ := strconv.ParseFloat(getEnv("GROQ_TEMPERATURE", "0.1"), 64)
	maxFileSize, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760"), 10, 64)
	concurrency, _ := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "4"))
	maxAttempts, _ := strconv.Atoi(getEnv("QUEUE_MAX_ATTEMPTS", "3"))
	lockTTL, _ := strconv.Atoi(getEnv("WORKER_LOCK_TTL_SECONDS", "300"))
	initialBackoff, _ := strconv.Atoi(getEnv("QUEUE_INITIAL_BACKOFF_SECONDS", "60"))
	rescanInterval, _ := strconv.Atoi(getEnv("FRAUD_RESCAN_INTERVAL_MINUTES", "60"))
	rescanWindow, _ := strconv.Atoi(getEnv("FRAUD_RESCAN_WINDOW_HOURS", "24"))
	rescanMaxScore, _ := strconv.Atoi(getEnv("FRAUD_RESCAN_MAX_SCORE", "50"))
	minConfidence, _ := strconv.ParseFloat(getEnv("MIN_EXTRACTION_CONFIDENCE", "0.5"), 64)
	debug := getEnv("DEBUG", "false") == "true"

	dbCfg, err := databaseConfig()
	if err != nil {
		return nil, err
	}

	redisCfg, err := redisConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: dbCfg,
		Redis:    redisCfg,
		JWT: JWTConfig{
			SecretKey:  getEnv("SECRET_KEY", "change-me-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		Groq: GroqConfig{
			APIKey:      getEnv("GROQ_API_KEY", ""),
			Model:       getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			BaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Temperature: temperature,
			Timeout:     time.Duration(llmTimeout) * time.Second,
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
			MaxFileSize: maxFileSize,
		},
		Worker: WorkerConfig{
			Name:           workerName(),
			Concurrency:    concurrency,
			MaxAttempts:    maxAttempts,
			LockTTL:        time.Duration(lockTTL) * time.Second,
			InitialBackoff: time.Duration(initialBackoff) * time.Second,
			RescanInterval: time.Duration(rescanInterval) * time.Minute,
			RescanWindow:   time.Duration(rescanWindow) * time.Hour,
			RescanMaxScore: rescanMaxScore,
		},
		Policy: PolicyConfig{
			MaxReceiptAmount: getEnv("MAX_RECEIPT_AMOUNT", "5000.00"),
			MinConfidence:    minConfidence,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Debug: debug,
	}, nil
}

// databaseConfig prefers DATABASE_URL and falls back to discrete DB_* variables.
func databaseConfig() (DatabaseConfig, error) {
	maxConns, _ := strconv.Atoi(getEnv("DB_MAX_CONNS", "8"))
	minConns, _ := strconv.Atoi(getEnv("DB_MIN_CONNS", "0"))

	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		password, _ := u.User.Password()
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		sslMode := u.Query().Get("sslmode")
		if sslMode == "" {
			sslMode = "disable"
		}
		return DatabaseConfig{
			Host:     u.Hostname(),
			Port:     port,
			User:     u.User.Username(),
			Password: password,
			DBName:   strings.TrimPrefix(u.Path, "/"),
			SSLMode:  sslMode,
			MaxConns: int32(maxConns),
			MinConns: int32(minConns),
		}, nil
	}

	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "expense_audit"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
		MinConns: int32(minConns),
	}, nil
}

// redisConfig prefers REDIS_URL and falls back to REDIS_ADDRESS.
func redisConfig() (RedisConfig, error) {
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		password, _ := u.User.Password()
		db := 0
		if p := strings.TrimPrefix(u.Path, "/"); p != "" {
			db, _ = strconv.Atoi(p)
		}
		return RedisConfig{
			Addr:     u.Host,
			Password: password,
			DB:       db,
		}, nil
	}

	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDRESS", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}, nil
}

// workerName identifies this worker instance; leased jobs are keyed by it so
// a restart reclaims exactly the jobs the previous run held.
func workerName() string {
	if name := os.Getenv("WORKER_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
