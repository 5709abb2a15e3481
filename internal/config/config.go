/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stream MIME types supported by the broadcast core.
const (
	MIMEMPEG = "audio/mpeg"
	MIMEOgg  = "audio/ogg"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Broadcast tunables
	StreamMIMEType        string
	ChunkSize             int
	SubscriberQueueChunks int
	AssumedBitrateKbps    float64

	// Schedule
	ScheduleJSON string
	ScheduleFile string
	ScheduleTZ   string

	// Sources
	LocalMusicDir        string
	SourceRefreshSeconds int
	RetryBackoff         time.Duration

	// Telegram
	TelegramAPIID      int
	TelegramAPIHash    string
	TelegramBotToken   string
	TelegramSession    string
	TelegramFetchLimit int
	TelegramChannel    string // default channel for slots without a key

	// Play history (sqlite)
	HistoryDSN      string
	HistoryDisabled bool

	// Cache tier (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogFile string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("YURETS_ENV", "development"),
		HTTPBind:    getEnv("YURETS_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("YURETS_HTTP_PORT", 8080),

		StreamMIMEType:        getEnv("YURETS_STREAM_MIME_TYPE", MIMEMPEG),
		ChunkSize:             getEnvInt("YURETS_CHUNK_SIZE", 65536),
		SubscriberQueueChunks: getEnvInt("YURETS_SUBSCRIBER_QUEUE_CHUNKS", 128),
		AssumedBitrateKbps:    getEnvFloat("YURETS_ASSUMED_BITRATE_KBPS", 192),

		ScheduleJSON: getEnv("YURETS_SCHEDULE_JSON",
			`[{"start":"00:00","end":"08:00","source":"telegram"},`+
				`{"start":"08:00","end":"18:00","source":"local"},`+
				`{"start":"18:00","end":"00:00","source":"telegram"}]`),
		ScheduleFile: getEnv("YURETS_SCHEDULE_FILE", ""),
		ScheduleTZ:   getEnv("YURETS_SCHEDULE_TZ", "Local"),

		LocalMusicDir:        getEnv("YURETS_LOCAL_MUSIC_DIR", "/music"),
		SourceRefreshSeconds: getEnvInt("YURETS_SOURCE_REFRESH_SECONDS", 15),
		RetryBackoff:         time.Duration(getEnvInt("YURETS_RETRY_BACKOFF_SECONDS", 2)) * time.Second,

		TelegramAPIID:      getEnvInt("YURETS_TELEGRAM_API_ID", 0),
		TelegramAPIHash:    getEnv("YURETS_TELEGRAM_API_HASH", ""),
		TelegramBotToken:   getEnv("YURETS_TELEGRAM_BOT_TOKEN", ""),
		TelegramSession:    getEnv("YURETS_TELEGRAM_SESSION", "/telegram_session/yurets_fm.session"),
		TelegramFetchLimit: getEnvInt("YURETS_TELEGRAM_FETCH_LIMIT", 50),
		TelegramChannel:    getEnv("YURETS_TELEGRAM_CHANNEL", ""),

		HistoryDSN:      getEnv("YURETS_HISTORY_DSN", "file:yurets_fm.db"),
		HistoryDisabled: getEnvBool("YURETS_HISTORY_DISABLED", false),

		RedisAddr:     getEnv("YURETS_REDIS_ADDR", ""),
		RedisPassword: getEnv("YURETS_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("YURETS_REDIS_DB", 0),

		LogFile: getEnv("YURETS_LOG_FILE", ""),

		TracingEnabled:    getEnvBool("YURETS_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("YURETS_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("YURETS_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.StreamMIMEType != MIMEMPEG && cfg.StreamMIMEType != MIMEOgg {
		return nil, fmt.Errorf("unsupported stream MIME type %q", cfg.StreamMIMEType)
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("YURETS_CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}

	if cfg.SubscriberQueueChunks <= 0 {
		return nil, fmt.Errorf("YURETS_SUBSCRIBER_QUEUE_CHUNKS must be positive, got %d", cfg.SubscriberQueueChunks)
	}

	if cfg.AssumedBitrateKbps <= 0 {
		return nil, fmt.Errorf("YURETS_ASSUMED_BITRATE_KBPS must be positive, got %v", cfg.AssumedBitrateKbps)
	}

	if cfg.ScheduleJSON == "" && cfg.ScheduleFile == "" {
		return nil, fmt.Errorf("YURETS_SCHEDULE_JSON or YURETS_SCHEDULE_FILE must be provided")
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid YURETS_SCHEDULE_TZ %q: %w", cfg.ScheduleTZ, err)
	}

	return cfg, nil
}

// TelegramConfigured reports whether MTProto API credentials are present.
// A configured source may still fail to authorize; see the telegram package.
func (c *Config) TelegramConfigured() bool {
	return c.TelegramAPIID != 0 && c.TelegramAPIHash != ""
}

// SourceRefresh returns the Telegram listing refresh interval.
func (c *Config) SourceRefresh() time.Duration {
	return time.Duration(c.SourceRefreshSeconds) * time.Second
}

// Location resolves the schedule timezone. Accepts IANA names, "Local",
// "UTC"/"Z", and fixed offsets like "+03:00" or "-0500".
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.ScheduleTZ)
	switch {
	case name == "" || strings.EqualFold(name, "local"):
		return time.Local, nil
	case strings.EqualFold(name, "utc") || name == "Z":
		return time.UTC, nil
	}

	if loc, ok := parseFixedOffset(name); ok {
		return loc, nil
	}

	return time.LoadLocation(name)
}

func parseFixedOffset(name string) (*time.Location, bool) {
	if len(name) < 5 || (name[0] != '+' && name[0] != '-') {
		return nil, false
	}
	digits := strings.ReplaceAll(name[1:], ":", "")
	if len(digits) != 4 {
		return nil, false
	}
	hh, err := strconv.Atoi(digits[:2])
	if err != nil {
		return nil, false
	}
	mm, err := strconv.Atoi(digits[2:])
	if err != nil || hh > 14 || mm > 59 {
		return nil, false
	}
	offset := hh*3600 + mm*60
	if name[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(name, offset), true
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
