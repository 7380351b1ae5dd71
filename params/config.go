package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Node struct {
	// DataDir holds the pebble order ledger. One engine per data dir.
	DataDir string
	LogFile string
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Config struct {
	Node Node
	API  API
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir: "data/orders.db",
			LogFile: "data/node.log",
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	// Comma-separated list, e.g. "http://localhost:3000,https://app.example.com"
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = strings.Split(origins, ",")
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
