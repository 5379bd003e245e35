package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/duckdb"
	"github.com/tinytelemetry/logmock/internal/forward"
	"github.com/tinytelemetry/logmock/internal/ingest"
	"github.com/tinytelemetry/logmock/internal/model"
	"github.com/tinytelemetry/logmock/internal/recorder"
)

// SinkPlugin is a small plugin primitive for wiring batch outputs.
type SinkPlugin interface {
	Name() string
	Enabled() bool
	Build(logger zerolog.Logger) (BuiltSink, error)
}

// BuiltSink is a started sink. Close releases its resources and may be nil.
type BuiltSink struct {
	Sink  ingest.BatchSink
	Store model.ReadAPI // set by the capture plugin only
	Close func()
}

// SinkPluginConfig defines runtime sink selection.
type SinkPluginConfig struct {
	PrintBatches bool
	PrintOut     io.Writer

	CaptureEnabled      bool
	CaptureDBPath       string
	QueryTimeout        time.Duration
	InsertBatchSize     int
	InsertFlushInterval time.Duration
	InsertFlushQueue    int
	CaptureRetention    int

	NATSURL     string
	NATSSubject string
}

func sinkPluginConfig(cfg appConfig) SinkPluginConfig {
	return SinkPluginConfig{
		PrintBatches:        cfg.PrintBatches,
		PrintOut:            os.Stdout,
		CaptureEnabled:      cfg.CaptureEnabled,
		CaptureDBPath:       cfg.CaptureDBPath,
		QueryTimeout:        cfg.QueryTimeout,
		InsertBatchSize:     cfg.InsertBatchSize,
		InsertFlushInterval: cfg.InsertFlushInterval,
		InsertFlushQueue:    cfg.InsertFlushQueue,
		CaptureRetention:    cfg.CaptureRetention,
		NATSURL:             cfg.NATSURL,
		NATSSubject:         cfg.NATSSubject,
	}
}

func buildSinkPlugins(cfg SinkPluginConfig) []SinkPlugin {
	return []SinkPlugin{
		printerSinkPlugin{enabled: cfg.PrintBatches, out: cfg.PrintOut},
		captureSinkPlugin{cfg: cfg},
		natsSinkPlugin{url: cfg.NATSURL, subject: cfg.NATSSubject},
	}
}

// startSinks builds every enabled plugin. On error, sinks already built are closed.
func startSinks(plugins []SinkPlugin, logger zerolog.Logger) (ingest.MultiSink, model.ReadAPI, func(), error) {
	var sinks ingest.MultiSink
	var store model.ReadAPI
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		built, err := plugin.Build(logger)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("sink %q: %w", plugin.Name(), err)
		}
		sinks = append(sinks, built.Sink)
		if built.Store != nil {
			store = built.Store
		}
		if built.Close != nil {
			closers = append(closers, built.Close)
		}
	}
	return sinks, store, closeAll, nil
}

type printerSinkPlugin struct {
	enabled bool
	out     io.Writer
}

func (p printerSinkPlugin) Name() string { return "printer" }

func (p printerSinkPlugin) Enabled() bool { return p.enabled && p.out != nil }

func (p printerSinkPlugin) Build(logger zerolog.Logger) (BuiltSink, error) {
	return BuiltSink{Sink: recorder.NewPrinter(p.out, logger)}, nil
}

type captureSinkPlugin struct {
	cfg SinkPluginConfig
}

func (p captureSinkPlugin) Name() string { return "capture" }

func (p captureSinkPlugin) Enabled() bool { return p.cfg.CaptureEnabled }

func (p captureSinkPlugin) Build(logger zerolog.Logger) (BuiltSink, error) {
	store, err := duckdb.NewStore(p.cfg.CaptureDBPath, p.cfg.QueryTimeout)
	if err != nil {
		return BuiltSink{}, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	store.SetLogger(logger)
	dbPath := store.DBPath()
	if dbPath == "" {
		dbPath = ":memory:"
	}
	logger.Info().Str("path", dbPath).Msg("capture store opened")

	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      p.cfg.InsertBatchSize,
		FlushInterval:  p.cfg.InsertFlushInterval,
		FlushQueueSize: p.cfg.InsertFlushQueue,
		Logger:         &logger,
	})

	// Start retention cleaner for automatic record expiry
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: p.cfg.CaptureRetention,
	})

	return BuiltSink{
		Sink:  ingest.RecordFanout{Sink: insertBuffer},
		Store: store,
		Close: func() {
			if retentionCleaner != nil {
				retentionCleaner.Stop()
			}
			insertBuffer.Stop()
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing capture store")
			}
		},
	}, nil
}

type natsSinkPlugin struct {
	url     string
	subject string
}

func (p natsSinkPlugin) Name() string { return "nats" }

func (p natsSinkPlugin) Enabled() bool { return p.url != "" }

func (p natsSinkPlugin) Build(logger zerolog.Logger) (BuiltSink, error) {
	nc, err := forward.Connect(p.url, "logmock", logger)
	if err != nil {
		return BuiltSink{}, err
	}
	return BuiltSink{
		Sink: forward.NewPublisher(nc, p.subject, logger),
		Close: func() {
			if err := nc.Drain(); err != nil {
				nc.Close()
			}
		},
	}, nil
}
