package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv builds it so main
// stays lean; zero values mean "backend not configured" and the wiring in
// cmd/server falls back to in-memory implementations.
type Server struct {
	Addr          string
	PostgresURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	JWTIssuer     string

	// LedgerTimeout bounds every attestation write; a slower ledger surfaces
	// as LEDGER_UNAVAILABLE instead of hanging the signing request.
	LedgerTimeout time.Duration

	OCR     OCRConfig
	Uploads UploadConfig

	// ValidationThreshold is the pass mark for identity validation reports.
	ValidationThreshold float64

	LogLevel string
}

// RedisConfig configures the optional Redis-backed attestation ledger.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OCRConfig locates the external OCR toolchain. Empty binaries disable the
// OCR path and identity validation degrades to the fallback validator.
type OCRConfig struct {
	TesseractBin string
	PdftoppmBin  string
	Language     string
	DPI          int
	MaxDimension int
	TmpDir       string
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	Dir         string
	MaxSizeByte int64
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("DOCSIGN_ADDR", ":8080"),
		PostgresURL:   os.Getenv("DOCSIGN_POSTGRES_URL"),
		KafkaTopic:    envOr("DOCSIGN_KAFKA_TOPIC", "docsign.audit"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "docsign"),
		LedgerTimeout: envDurationOr("DOCSIGN_LEDGER_TIMEOUT", 5*time.Second),
		OCR: OCRConfig{
			TesseractBin: os.Getenv("DOCSIGN_TESSERACT_BIN"),
			PdftoppmBin:  os.Getenv("DOCSIGN_PDFTOPPM_BIN"),
			Language:     envOr("DOCSIGN_OCR_LANG", "eng"),
			DPI:          envIntOr("DOCSIGN_OCR_DPI", 300),
			MaxDimension: envIntOr("DOCSIGN_OCR_MAX_DIMENSION", 2000),
			TmpDir:       envOr("DOCSIGN_OCR_TMP_DIR", os.TempDir()),
		},
		Uploads: UploadConfig{
			Dir:         envOr("DOCSIGN_UPLOAD_DIR", "uploads"),
			MaxSizeByte: int64(envIntOr("DOCSIGN_UPLOAD_MAX_BYTES", 50<<20)),
		},
		ValidationThreshold: envFloatOr("DOCSIGN_VALIDATION_THRESHOLD", 0.70),
		LogLevel:            envOr("LOG_LEVEL", "info"),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("DOCSIGN_REDIS_URL"),
		PoolSize:     envIntOr("DOCSIGN_REDIS_POOL_SIZE", 10),
		DialTimeout:  envDurationOr("DOCSIGN_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDurationOr("DOCSIGN_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDurationOr("DOCSIGN_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("DOCSIGN_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
