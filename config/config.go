// Package config reads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Registry service.
	RegistryAddr string // listen address of the registry HTTP server
	RedisAddr    string // empty means in-memory storage
	PeerTTL      time.Duration
	SweepEvery   time.Duration

	// Peer node.
	RegistryURL       string // base URL peers use to reach the registry
	ListenAddr        string // peer TCP listen address
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		RegistryAddr:      getEnv("REGISTRY_ADDR", ":5000"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		PeerTTL:           getDuration("PEER_TTL", 30*time.Minute),
		SweepEvery:        getDuration("SWEEP_INTERVAL", 5*time.Minute),
		RegistryURL:       getEnv("REGISTRY_URL", "http://localhost:5000"),
		ListenAddr:        getEnv("PEER_LISTEN_ADDR", ":0"),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 60*time.Second),
		DialTimeout:       getDuration("DIAL_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
