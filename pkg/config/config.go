package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	FirebaseApiKey  string
	Environment     string

	// Realtime gateway tuning.
	WSSendBuffer  int           // outbound frames buffered per connection
	WSIdleTimeout time.Duration // read deadline, refreshed by pong

	// Window inside which a repeated client_message_id is treated as a
	// retry of the same logical send.
	IdempotencyWindow time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		FirebaseProject:   getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseApiKey:    getEnv("FIREBASE_API_KEY", ""),
		Environment:       getEnv("ENVIRONMENT", "development"),
		WSSendBuffer:      getEnvAsInt("WS_SEND_BUFFER", 256),
		WSIdleTimeout:     time.Duration(getEnvAsInt("WS_IDLE_TIMEOUT_SECONDS", 60)) * time.Second,
		IdempotencyWindow: time.Duration(getEnvAsInt("IDEMPOTENCY_WINDOW_SECONDS", 300)) * time.Second,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
