package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds the node settings read from the environment.
type AppConfig struct {
	ListenAddr string
	EventsAddr string

	RedisURL    string
	DatabaseURL string

	RulesFile   string
	MessagesDir string

	GameTTL      time.Duration
	MaxBodyBytes int

	WSOriginPatterns []string
}

const (
	defaultListenAddr   = ":8080"
	defaultEventsAddr   = ":8081"
	defaultGameTTLSec   = 7 * 24 * 3600
	defaultMaxBodyBytes = 64 * 1024
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:   defaultListenAddr,
		EventsAddr:   defaultEventsAddr,
		GameTTL:      defaultGameTTLSec * time.Second,
		MaxBodyBytes: defaultMaxBodyBytes,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("EVENTS_ADDR")); v != "" {
		cfg.EventsAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RulesFile = strings.TrimSpace(os.Getenv("RULES_FILE"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("GAME_TTL_SEC")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("GAME_TTL_SEC must be a non-negative integer, got %q", v)
		}
		cfg.GameTTL = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("MAX_BODY_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MAX_BODY_BYTES must be a positive integer, got %q", v)
		}
		cfg.MaxBodyBytes = n
	}
	cfg.WSOriginPatterns = splitList(os.Getenv("WS_ORIGIN_PATTERNS"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ListenAddr == cfg.EventsAddr {
		return nil, errors.New("LISTEN_ADDR and EVENTS_ADDR must differ")
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
