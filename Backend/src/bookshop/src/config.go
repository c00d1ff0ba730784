package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	DBPath      string
	SeedOnStart bool
	// RabbitURL empty means event publishing is disabled.
	RabbitURL string
	Exchange  string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		ServiceName: getenv("BOOKSHOP_SERVICE_NAME", "bookshop"),
		HTTPAddr:    getenv("BOOKSHOP_HTTP_ADDR", ":8080"),
		DBPath:      getenv("BOOKSHOP_DB_PATH", "bookshop.db"),
		SeedOnStart: getenv("BOOKSHOP_SEED", "true") == "true",
		RabbitURL:   getenv("RABBITMQ_URL", ""),
		Exchange:    getenv("BOOKSHOP_EXCHANGE", "bookshop.events"),
	}
}

const ShutdownGrace = 10 * time.Second
