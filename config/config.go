package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// criticalVars have no usable default; the server refuses to start without
// them. DATABASE_URL is deliberately not critical because Connect falls back
// to a per-driver local development DSN.
var criticalVars = []string{"JWT_SECRET"}

// warnVars degrade a feature when unset instead of blocking startup.
var warnVars = []struct{ name, effect string }{
	{"DATABASE_URL", "connecting with the local development DSN"},
	{"FRONTEND_URL", "CORS will allow the localhost default only"},
	{"REDIS_ADDR", "falling back to the in-memory cache"},
	{"SMTP_HOST", "order emails will not be sent"},
	{"SMTP_FROM", "order emails will not be sent"},
}

// LoadEnv pulls in a .env file when one exists. Production deployments set
// real environment variables, so a missing file is not an error.
func LoadEnv() error {
	godotenv.Load()
	return nil
}

// ValidateEnv checks the environment before anything connects or listens.
// Missing critical variables abort startup; the rest only log what stops
// working without them.
func ValidateEnv() error {
	var missing []string
	for _, name := range criticalVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("critical environment variables not set: %v", missing)
	}

	for _, v := range warnVars {
		if os.Getenv(v.name) == "" {
			log.Printf("WARNING: %s not set - %s", v.name, v.effect)
		}
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvFloat parses a numeric variable, falling back on missing or
// malformed values.
func GetEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("WARNING: %s=%q is not a number, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}
