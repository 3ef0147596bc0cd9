package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting. Values come from the environment,
// optionally seeded from configs/.env in development.
type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	JWTSecret   string
	LogLevel    string
	LogFormat   string // console or json
	CORSOrigins []string

	// Emitter identity printed into every QR payload.
	EmitterTaxID   string
	EmitterCountry string
}

// Load reads configs/.env (if present) and the process environment.
func Load() Config {
	_ = godotenv.Load("configs/.env")

	return Config{
		Port:           getenv("PORT", "8080"),
		DBHost:         getenv("DB_HOST", "localhost"),
		DBPort:         getenv("DB_PORT", "5432"),
		DBUser:         getenv("DB_USER", "postgres"),
		DBPassword:     getenv("DB_PASSWORD", "postgres"),
		DBName:         getenv("DB_NAME", "faturacao"),
		DBSSLMode:      getenv("DB_SSLMODE", "disable"),
		JWTSecret:      getenv("JWT_SECRET", ""),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "console"),
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "http://localhost:5173")),
		EmitterTaxID:   getenv("EMITTER_TAX_ID", "000000000"),
		EmitterCountry: getenv("EMITTER_COUNTRY", "PT"),
	}
}

// DSN builds the PostgreSQL connection string.
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
