package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	OCR     OCRConfig     `mapstructure:"ocr" validate:"required"`
	Queue   QueueConfig   `mapstructure:"queue" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// OCRConfig contains the remote recognition service settings. The endpoints
// and token may be empty at startup; uploads are rejected until they are set.
type OCRConfig struct {
	APIURL         string        `mapstructure:"api_url" validate:"omitempty,url"`
	JobURL         string        `mapstructure:"job_url" validate:"omitempty,url"`
	Token          string        `mapstructure:"token"`
	Model          string        `mapstructure:"model" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	PollMaxWait    time.Duration `mapstructure:"poll_max_wait" validate:"gtfield=PollInterval"`
}

// QueueConfig sizes the worker pool and its dispatch buffer.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	QueueSize   int `mapstructure:"size" validate:"gte=1"`
}

// StorageConfig contains output location and upload limits.
type StorageConfig struct {
	OutputRoot    string `mapstructure:"output_root" validate:"required"`
	MaxFileBytes  int64  `mapstructure:"max_file_bytes" validate:"gt=0"`
	MaxTotalBytes int64  `mapstructure:"max_total_bytes" validate:"gtefield=MaxFileBytes"`
}
