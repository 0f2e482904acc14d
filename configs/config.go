package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// Config returns the value of key from .env or the process environment.
func Config(key string) string {
	loadOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Info("Warning: .env file not found, reading from system environment variables")
		}
	})

	return os.Getenv(key)
}

func ConfigDefault(key, fallback string) string {
	if v := Config(key); v != "" {
		return v
	}
	return fallback
}

func ConfigInt(key string, fallback int) int {
	v := Config(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// ConfigDuration accepts Go duration strings ("45s") or a bare number of seconds.
func ConfigDuration(key string, fallback time.Duration) time.Duration {
	v := Config(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Warnf("config %s=%q is not a duration, using %s", key, v, fallback)
	return fallback
}
