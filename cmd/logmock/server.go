package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logmock/internal/grpcserver"
	"github.com/tinytelemetry/logmock/internal/httpserver"
	"github.com/tinytelemetry/logmock/internal/ingest"
	"github.com/tinytelemetry/logmock/internal/recorder"
)

// runServer starts the mock collector and blocks until shutdown.
func runServer(cfg appConfig) error {
	logger, cleanupLogger, err := newRuntimeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	defer cleanupLogger()

	sinks, store, closeSinks, err := startSinks(buildSinkPlugins(sinkPluginConfig(cfg)), logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	policy := ingest.ErrorPolicyAcknowledge
	if cfg.RejectMalformed {
		policy = ingest.ErrorPolicyReject
	}
	rec := recorder.NewLogger(logger, cfg.LogBodyLimit)
	endpoint := ingest.NewEndpoint(ingest.Options{
		Recorder:    rec,
		Sink:        sinks,
		Logger:      logger,
		ErrorPolicy: policy,
	})

	httpServer := httpserver.NewServer(httpserver.Options{
		Addr:         cfg.HTTPAddr,
		Endpoint:     endpoint,
		Recorder:     rec,
		Store:        store,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	})
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer httpServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	if cfg.GRPCEnabled {
		grpcServer := grpcserver.NewServer(cfg.GRPCAddr, endpoint, int(cfg.MaxBodyBytes), logger)
		lis, err := grpcServer.Listen()
		if err != nil {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
		g.Go(func() error {
			if err := grpcServer.Serve(lis); err != nil {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.Stop()
			return nil
		})
	}

	printStartupBanner(os.Stdout, cfg, policy)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server: errgroup exited with error")
	}

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

// newRuntimeLogger builds the process logger: human-readable console output by
// default, JSON lines with log-format json, appended to log-file when set.
func newRuntimeLogger(cfg appConfig) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}

	var out io.Writer = os.Stderr
	cleanup := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return zerolog.Nop(), cleanup, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), cleanup, err
		}
		out = f
		cleanup = func() { _ = f.Close() }
	}

	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000", NoColor: cfg.LogFile != ""}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "logmock").Logger()
	return logger, cleanup, nil
}

func printStartupBanner(w io.Writer, cfg appConfig, policy ingest.ErrorPolicy) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	status := func(label string, enabled bool, detail string) string {
		if enabled {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(detail))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╔═╗╔═╗╦╔═
    ║  ║ ║║ ╦║║║║ ║║  ╠╩╗
    ╩═╝╚═╝╚═╝╩ ╩╚═╝╚═╝╩ ╩`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, status("HTTP", true, cfg.HTTPAddr))
	lines = append(lines, status("OTLP/gRPC", cfg.GRPCEnabled, cfg.GRPCAddr))
	lines = append(lines, status("Query API", cfg.CaptureEnabled, cfg.HTTPAddr+"/api"))
	lines = append(lines, "")

	// Sinks
	lines = append(lines, bold.Render("    Sinks"))
	lines = append(lines, "")
	lines = append(lines, status("Printer", cfg.PrintBatches, "stdout (yaml)"))
	capturePath := "in-memory"
	if cfg.CaptureDBPath != "" {
		capturePath = shortenPath(cfg.CaptureDBPath)
	}
	lines = append(lines, status("Capture", cfg.CaptureEnabled, capturePath))
	lines = append(lines, status("NATS", cfg.NATSURL != "", cfg.NATSURL+" > "+cfg.NATSSubject))
	lines = append(lines, "")

	// Runtime
	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Decode errors", dim.Render(policy.String())))

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
