package core

import (
	"fmt"
	"strings"
	"time"
)

type CredentialsConfig struct {
	// ExpiryBufferSeconds is how far ahead of the recorded token expiry a
	// refresh is forced.
	ExpiryBufferSeconds int `koanf:"expiry_buffer_seconds" mapstructure:"expiry_buffer_seconds"`
}

func (c CredentialsConfig) ExpiryBuffer() time.Duration {
	return time.Duration(c.ExpiryBufferSeconds) * time.Second
}

type StreamConfig struct {
	// LookbackDays bounds the first activity crawl when a connection has no
	// successful events crawl to resume from.
	LookbackDays int `koanf:"lookback_days" mapstructure:"lookback_days"`
}

func (c StreamConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

type HTTPConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries     int `koanf:"max_retries" mapstructure:"max_retries"`
}

func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Credentials CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Stream      StreamConfig      `koanf:"stream" mapstructure:"stream"`
	HTTP        HTTPConfig        `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "workspace-sync",
		Credentials: CredentialsConfig{ExpiryBufferSeconds: 300},
		Stream:      StreamConfig{LookbackDays: 180},
		HTTP:        HTTPConfig{TimeoutSeconds: 30, MaxRetries: 3},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Credentials.ExpiryBufferSeconds < 0 {
		return fmt.Errorf("core: credentials.expiry_buffer_seconds must not be negative")
	}
	if c.Stream.LookbackDays <= 0 {
		return fmt.Errorf("core: stream.lookback_days must be positive")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: http.timeout_seconds must be positive")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("core: http.max_retries must be positive")
	}
	return nil
}
