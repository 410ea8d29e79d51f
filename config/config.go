package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func LoadEnv() error {
	// Try to load .env file if it exists (for local development).
	// On production the environment variables are set directly.
	err := godotenv.Load()
	if err != nil {
		// .env file not found is not an error - it might be on production
		// Environment variables are already available in os.Getenv()
		return nil
	}
	return nil
}

// ValidateEnv checks that critical environment variables are set.
// Returns an error if any critical variable is missing.
func ValidateEnv() error {
	var missing []string

	// Critical variables - application cannot function without these
	if os.Getenv("JWT_SECRET") == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if os.Getenv("DATABASE_URL") == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("critical environment variables not set: %v", missing)
	}

	// Non-critical variables - log warnings but don't fail
	if os.Getenv("SHOPIFY_WEBHOOK_SECRET") == "" {
		log.Println("WARNING: SHOPIFY_WEBHOOK_SECRET not set - webhook requests will be rejected")
	}
	if os.Getenv("SHOPIFY_SHOP_DOMAIN") == "" {
		log.Println("WARNING: SHOPIFY_SHOP_DOMAIN not set - discount code issuance will fail")
	}
	if os.Getenv("SHOPIFY_ADMIN_TOKEN") == "" {
		log.Println("WARNING: SHOPIFY_ADMIN_TOKEN not set - discount code issuance will fail")
	}
	if os.Getenv("CRON_SECRET") == "" {
		log.Println("WARNING: CRON_SECRET not set - the cron endpoint will accept unauthenticated calls")
	}
	if os.Getenv("FRONTEND_URL") == "" {
		log.Println("WARNING: FRONTEND_URL not set - CORS may not work correctly")
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
