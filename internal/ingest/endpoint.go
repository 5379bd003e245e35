package ingest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

// Fixed response bodies.
const (
	AckBody      = "ok"
	NotFoundBody = "not found"
)

// ErrorPolicy decides what the endpoint answers when a body fails to decode.
type ErrorPolicy int

const (
	// ErrorPolicyAcknowledge logs the DecodeError and still answers 200 "ok".
	// Clients under test never see a decode failure.
	ErrorPolicyAcknowledge ErrorPolicy = iota
	// ErrorPolicyReject answers 400 with the decode error text.
	ErrorPolicyReject
)

func (p ErrorPolicy) String() string {
	if p == ErrorPolicyReject {
		return "reject"
	}
	return "acknowledge"
}

// Options configures an Endpoint.
type Options struct {
	Routes      RouteTable // defaults to DefaultRoutes()
	Recorder    Recorder   // may be nil
	Sink        BatchSink  // may be nil
	Logger      zerolog.Logger
	ErrorPolicy ErrorPolicy
}

// Endpoint decodes ingestion bodies against the schema bound to their route
// and emits the resulting batches. It holds no per-request state and is safe
// for concurrent use.
type Endpoint struct {
	routes   RouteTable
	recorder Recorder
	sink     BatchSink
	logger   zerolog.Logger
	policy   ErrorPolicy
}

// NewEndpoint creates an ingestion endpoint.
func NewEndpoint(opts Options) *Endpoint {
	routes := opts.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	return &Endpoint{
		routes:   routes,
		recorder: opts.Recorder,
		sink:     opts.Sink,
		logger:   opts.Logger.With().Str("component", "endpoint").Logger(),
		policy:   opts.ErrorPolicy,
	}
}

// Routes returns the endpoint's route table.
func (e *Endpoint) Routes() RouteTable { return e.routes }

// Policy returns the decode error policy.
func (e *Endpoint) Policy() ErrorPolicy { return e.policy }

// Handle records the request and then processes it.
func (e *Endpoint) Handle(path string, body []byte, md model.Metadata) (int, string) {
	if e.recorder != nil {
		e.recorder.Record(md, body)
	}
	return e.Process(path, body, md)
}

// Process decodes body against the schema bound to path and emits the batch.
// It does not record the request; callers that already recorded it (the HTTP
// middleware) use Process directly.
func (e *Endpoint) Process(path string, body []byte, md model.Metadata) (int, string) {
	route, params, ok := e.routes.Match(path)
	if !ok {
		return http.StatusNotFound, NotFoundBody
	}

	receivedAt := time.Now()
	batch, err := route.Schema.Decode(body, md, params)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("route", route.Pattern).
			Str("path", path).
			Str("request_id", md[model.MetaRequestID]).
			Int("body_bytes", len(body)).
			Str("policy", e.policy.String()).
			Msg("decode failed")

		if e.policy == ErrorPolicyReject {
			return http.StatusBadRequest, fmt.Sprintf("decode error: %v", err)
		}
		return http.StatusOK, AckBody
	}

	batch.Route = route.Pattern
	// Arrival time is not part of the decoded payload.
	for _, record := range batch.Records {
		record.ReceivedAt = receivedAt
	}

	e.logger.Info().
		Str("schema", batch.Schema).
		Str("route", route.Pattern).
		Str("logstore", batch.Logstore).
		Str("request_id", md[model.MetaRequestID]).
		Int("records", batch.Len()).
		Msg("batch decoded")

	if e.sink != nil {
		e.sink.Consume(batch)
	}
	return http.StatusOK, AckBody
}
