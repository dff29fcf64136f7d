package reliability

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for reliability testing.
type Config struct {
	Level      string        // "basic" or "stress".
	Duration   time.Duration // How long stress tests keep calling.
	Goroutines int           // Concurrent callers.
}

// getConfig reads configuration from environment variables.
func getConfig() Config {
	return Config{
		Level:      getEnv("SPANZ_RELIABILITY_LEVEL", "basic"),
		Duration:   parseDuration(getEnv("SPANZ_RELIABILITY_DURATION", "2s")),
		Goroutines: parseInt(getEnv("SPANZ_RELIABILITY_GOROUTINES", "32")),
	}
}

// stress reports whether long-running scenarios should run.
func (c Config) stress() bool {
	return c.Level == "stress"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return 32
}

func parseDuration(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 2 * time.Second
}
