package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/chatrelay/internal/core"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	HistoryBacklog    int           `mapstructure:"history_backlog" yaml:"history_backlog"`
	SendBuffer        int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	MaxFrameBytes     int           `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
	RateLimit         int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	OperatorSecret    string        `mapstructure:"operator_secret" yaml:"operator_secret"`
	OperatorIssuer    string        `mapstructure:"operator_issuer" yaml:"operator_issuer"`
	OperatorTokenTTL  time.Duration `mapstructure:"operator_token_ttl" yaml:"operator_token_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":5555",
		HTTPAddr:          ":8080",
		DatabasePath:      "chatrelay.db",
		HistoryLimit:      500,
		HistoryBacklog:    50,
		SendBuffer:        64,
		MaxFrameBytes:     1 << 20,
		RateLimit:         600,
		WriteTimeout:      5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		OperatorIssuer:    "chatrelay",
		OperatorTokenTTL:  24 * time.Hour,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.HistoryBacklog != 0 {
		c.HistoryBacklog = other.HistoryBacklog
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}
	if c.HistoryBacklog <= 0 {
		errs = append(errs, errors.New("history_backlog must be positive"))
	}
	if c.SendBuffer < core.MinSendBuffer {
		errs = append(errs, fmt.Errorf("send_buffer must be at least %d", core.MinSendBuffer))
	}
	if c.MaxFrameBytes < 256 {
		errs = append(errs, errors.New("max_frame_bytes must be at least 256"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}
