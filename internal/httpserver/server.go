package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/ingest"
	"github.com/tinytelemetry/logmock/internal/model"
)

// DefaultMaxBodyBytes bounds ingestion bodies when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes int64 = 32 << 20

// Options configures the HTTP surface.
type Options struct {
	Addr         string
	Endpoint     *ingest.Endpoint
	Recorder     ingest.Recorder // may be nil
	Store        model.ReadAPI   // nil disables the /api routes
	MaxBodyBytes int64           // 0 = DefaultMaxBodyBytes, <0 = unlimited
	Logger       zerolog.Logger
}

// Server serves the mock collector routes and, when a capture store is
// configured, the read-only query API.
type Server struct {
	addr         string
	endpoint     *ingest.Endpoint
	recorder     ingest.Recorder
	store        model.ReadAPI
	maxBodyBytes int64
	logger       zerolog.Logger

	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP server.
func NewServer(opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = "0.0.0.0:80"
	}
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:         addr,
		endpoint:     opts.Endpoint,
		recorder:     opts.Recorder,
		store:        opts.Store,
		maxBodyBytes: maxBody,
		logger:       opts.Logger.With().Str("component", "httpserver").Logger(),
		ctx:          ctx,
		cancel:       cancel,
		startTime:    time.Now(),
	}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	// Unmatched paths and methods must still pass through recordRequest.
	r.RedirectTrailingSlash = false
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), s.requestID(), s.recordRequest())
	r.NoRoute(s.handleNotFound)
	r.NoMethod(s.handleMethodNotAllowed)

	r.GET("/", s.handleHello)
	for _, route := range s.endpoint.Routes().HTTP() {
		r.POST(route.GinPath(), s.handleIngest)
	}

	if s.store != nil {
		api := r.Group("/api")
		api.GET("/health", s.handleHealth)
		api.GET("/schema", s.handleSchema)
		api.POST("/query", s.handleQuery)
		api.GET("/records", s.handleRecords)
		api.GET("/stats", s.handleStats)
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("serve failed")
		}
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound listen address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
