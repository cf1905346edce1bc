// Package config loads the gateway's process-wide configuration from the
// environment via viper, with defaults for everything optional.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved set of knobs the gateway needs at startup.
type Config struct {
	// NATSURL is the broker connection URL (plain or "tls://").
	NATSURL string
	// NATSCAFile is the trust root used to verify the broker's TLS certificate.
	NATSCAFile string
	// NATSCertFile/NATSKeyFile configure mutual TLS when both are set.
	NATSCertFile string
	NATSKeyFile  string
	// NATSConnectTimeout bounds the initial dial at startup.
	NATSConnectTimeout time.Duration

	// JWTKey is the symmetric HMAC signing key. Empty disables the request gate.
	JWTKey string
	// JWTIssuer/JWTAudience are checked when non-empty.
	JWTIssuer   string
	JWTAudience string

	// StreamPrefix is the candidate stream name used for subjects with no dot.
	StreamPrefix string

	// HTTPAddr is the listen address for the HTTP/WebSocket server.
	HTTPAddr string
	// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
	ShutdownTimeout time.Duration

	// LogLevel/LogFormat configure the structured logger.
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the process environment, applying the
// defaults documented alongside each key below.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]any{
		"NATS_URL":              "nats://127.0.0.1:4222",
		"NATS_CA_FILE":          "",
		"NATS_CERT_FILE":        "",
		"NATS_KEY_FILE":         "",
		"NATS_CONNECT_TIMEOUT":  "10s",
		"JWT_KEY":               "",
		"JWT_ISSUER":            "",
		"JWT_AUDIENCE":          "",
		"STREAM_PREFIX":         "DEFAULT",
		"HTTP_ADDR":             ":8080",
		"SHUTDOWN_TIMEOUT":      "10s",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
	}
	for key, def := range defaults {
		v.SetDefault(key, def)
		_ = v.BindEnv(key)
	}

	connectTimeout, err := time.ParseDuration(v.GetString("NATS_CONNECT_TIMEOUT"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid NATS_CONNECT_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return Config{
		NATSURL:            v.GetString("NATS_URL"),
		NATSCAFile:         v.GetString("NATS_CA_FILE"),
		NATSCertFile:       v.GetString("NATS_CERT_FILE"),
		NATSKeyFile:        v.GetString("NATS_KEY_FILE"),
		NATSConnectTimeout: connectTimeout,
		JWTKey:             v.GetString("JWT_KEY"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		JWTAudience:        v.GetString("JWT_AUDIENCE"),
		StreamPrefix:       v.GetString("STREAM_PREFIX"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		ShutdownTimeout:    shutdownTimeout,
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}, nil
}

// UseTLS reports whether the broker connection should be TLS-wrapped.
func (c Config) UseTLS() bool {
	return c.NATSCAFile != ""
}

// UseMutualTLS reports whether the broker connection should present a client certificate.
func (c Config) UseMutualTLS() bool {
	return c.NATSCertFile != "" && c.NATSKeyFile != ""
}

// GateDisabled reports whether the request gate should admit every request (dev mode).
func (c Config) GateDisabled() bool {
	return c.JWTKey == ""
}
