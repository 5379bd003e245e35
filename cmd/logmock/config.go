package main

import (
	"time"

	"github.com/tinytelemetry/logmock/internal/httpserver"
	"github.com/tinytelemetry/logmock/internal/recorder"
)

const (
	defaultBindHost            = "0.0.0.0"
	defaultHTTPPort            = 80
	defaultGRPCPort            = 4317
	defaultMaxBodyBytes        = httpserver.DefaultMaxBodyBytes
	defaultLogBodyLimit        = recorder.DefaultBodyLimit
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultQueryTimeout        = 30 * time.Second
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultCaptureRetention    = 0 // days, 0 = disabled
	defaultNATSSubject         = "logmock"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host     string `mapstructure:"host" validate:"omitempty,ip|hostname"`
	HTTPPort int    `mapstructure:"http-port" validate:"min=1,max=65535"`
	HTTPAddr string `mapstructure:"http-addr" validate:"omitempty,hostname_port"`

	GRPCEnabled bool   `mapstructure:"grpc-enabled"`
	GRPCPort    int    `mapstructure:"grpc-port" validate:"min=1,max=65535"`
	GRPCAddr    string `mapstructure:"grpc-addr" validate:"omitempty,hostname_port"`

	RejectMalformed bool  `mapstructure:"reject-malformed"`
	MaxBodyBytes    int64 `mapstructure:"max-body-bytes" validate:"min=1"`
	LogBodyLimit    int   `mapstructure:"log-body-limit" validate:"min=-1"`

	LogFormat string `mapstructure:"log-format" validate:"oneof=console json"`
	LogLevel  string `mapstructure:"log-level" validate:"oneof=trace debug info warn error"`
	LogFile   string `mapstructure:"log-file"`

	PrintBatches bool `mapstructure:"print-batches"`

	CaptureEnabled      bool          `mapstructure:"capture-enabled"`
	CaptureDBPath       string        `mapstructure:"capture-db-path"` // empty = in-memory
	QueryTimeout        time.Duration `mapstructure:"query-timeout" validate:"gt=0"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size" validate:"min=1"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval" validate:"gt=0"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size" validate:"min=1"`
	CaptureRetention    int           `mapstructure:"capture-retention" validate:"min=0"`

	NATSURL     string `mapstructure:"nats-url" validate:"omitempty,url"`
	NATSSubject string `mapstructure:"nats-subject" validate:"required_with=NATSURL"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
