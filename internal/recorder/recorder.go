// Package recorder provides the observability sinks of the mock collector:
// a structured request recorder and a human-readable batch printer.
package recorder

import (
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

// DefaultBodyLimit is the number of body bytes included in a request event.
const DefaultBodyLimit = 4096

// Logger records each request's environment and body as one structured event.
type Logger struct {
	logger    zerolog.Logger
	bodyLimit int
}

// NewLogger creates a request recorder. A bodyLimit of 0 uses DefaultBodyLimit;
// a negative limit logs bodies in full.
func NewLogger(logger zerolog.Logger, bodyLimit int) *Logger {
	if bodyLimit == 0 {
		bodyLimit = DefaultBodyLimit
	}
	return &Logger{
		logger:    logger.With().Str("component", "recorder").Logger(),
		bodyLimit: bodyLimit,
	}
}

// Record emits a "request" event carrying the full metadata mapping and the
// (possibly truncated) quoted body.
func (l *Logger) Record(md model.Metadata, body []byte) {
	preview := body
	truncated := false
	if l.bodyLimit > 0 && len(body) > l.bodyLimit {
		preview = body[:l.bodyLimit]
		truncated = true
	}

	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	environ := zerolog.Dict()
	for _, k := range keys {
		environ.Str(k, md[k])
	}

	l.logger.Info().
		Str("request_id", md[model.MetaRequestID]).
		Str("method", md[model.MetaRequestMethod]).
		Str("path", md[model.MetaPathInfo]).
		Dict("environ", environ).
		Int("body_bytes", len(body)).
		Bool("body_truncated", truncated).
		Str("body", strconv.Quote(string(preview))).
		Msg("request")
}
