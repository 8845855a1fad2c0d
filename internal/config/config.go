package config

import "os"

// Config captures everything the process reads from the environment.
// It is built once in main and handed to the components that need it.
type Config struct {
	ListenAddr string

	// Postgres connection string.
	DatabaseDSN string

	// Telegram bot credentials and the admin group chat that receives
	// order reports.
	BotToken   string
	AdminGroup string

	// OIDC settings for the admin endpoints. Leaving the issuer empty
	// disables token verification setup (admin routes then reject all
	// requests).
	OIDCIssuer   string
	OIDCClientID string
}

// FromEnv populates a Config using sensible defaults that can be
// overridden via environment variables.
func FromEnv() Config {
	return Config{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		DatabaseDSN:  getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=webapp port=5432 sslmode=disable"),
		BotToken:     os.Getenv("BOT_TOKEN"),
		AdminGroup:   os.Getenv("ADMIN_GROUP"),
		OIDCIssuer:   os.Getenv("OIDC_ISSUER"),
		OIDCClientID: os.Getenv("OIDC_CLIENT_ID"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
