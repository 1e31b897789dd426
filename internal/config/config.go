// Package config loads runtime configuration from the environment. Every
// knob has a default so the binary starts against a local stack with no env
// set except the secrets.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mongo     Mongo
	NATS      NATS
	Auth      Auth
	Presence  Presence
	RateLimit RateLimit
	Logger    Logger
}

type Mongo struct {
	URI      string
	Database string
}

type NATS struct {
	URL  string
	User string
	Pass string
}

type Auth struct {
	// SessionSecret verifies caller session tokens at the RPC boundary.
	SessionSecret string
	// TransportSecret signs the per-user connection tokens handed to the
	// real-time transport (HS256, sub = user id).
	TransportSecret   string
	TransportTokenTTL time.Duration
}

type Presence struct {
	TypingWindow time.Duration
	// PendingRequestTTL bounds how long an unanswered connection request
	// stays around before the expiry sweep deletes it.
	PendingRequestTTL time.Duration
	ExpirySweepEvery  time.Duration
}

type RateLimit struct {
	ConnectionRPM int
	Burst         int
}

type Logger struct {
	Development bool
	Level       string
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "rovierr")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_USER", "")
	v.SetDefault("NATS_PASS", "")
	v.SetDefault("TRANSPORT_TOKEN_TTL", "1h")
	v.SetDefault("TYPING_WINDOW", "3s")
	v.SetDefault("PENDING_REQUEST_TTL", "2160h") // 90 days
	v.SetDefault("EXPIRY_SWEEP_EVERY", "1h")
	v.SetDefault("RATE_LIMIT_RPM", 60)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Mongo: Mongo{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
		},
		NATS: NATS{
			URL:  v.GetString("NATS_URL"),
			User: v.GetString("NATS_USER"),
			Pass: v.GetString("NATS_PASS"),
		},
		Auth: Auth{
			SessionSecret:     v.GetString("JWT_SECRET"),
			TransportSecret:   v.GetString("TRANSPORT_HMAC_SECRET"),
			TransportTokenTTL: v.GetDuration("TRANSPORT_TOKEN_TTL"),
		},
		Presence: Presence{
			TypingWindow:      v.GetDuration("TYPING_WINDOW"),
			PendingRequestTTL: v.GetDuration("PENDING_REQUEST_TTL"),
			ExpirySweepEvery:  v.GetDuration("EXPIRY_SWEEP_EVERY"),
		},
		RateLimit: RateLimit{
			ConnectionRPM: v.GetInt("RATE_LIMIT_RPM"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
		},
		Logger: Logger{
			Development: v.GetBool("LOG_DEVELOPMENT"),
			Level:       v.GetString("LOG_LEVEL"),
		},
	}

	if cfg.Auth.SessionSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	if cfg.Auth.TransportSecret == "" {
		return nil, errors.New("TRANSPORT_HMAC_SECRET must be set")
	}
	return cfg, nil
}
