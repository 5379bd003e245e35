// Package forward publishes decoded batches to a NATS subject tree so other
// test processes can subscribe to what the mock collector received.
package forward

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

// DefaultSubjectPrefix is the root of the published subject tree.
const DefaultSubjectPrefix = "logmock"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Connect dials a NATS server. Reconnects are unlimited; connection state
// changes are logged.
func Connect(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Publisher is a batch sink that publishes each batch as JSON to
// <prefix>.<schema>.<logstore>.
type Publisher struct {
	conn   Conn
	prefix string
	logger zerolog.Logger
}

// NewPublisher creates a publisher. An empty prefix uses DefaultSubjectPrefix.
func NewPublisher(conn Conn, prefix string, logger zerolog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "forward").Logger(),
	}
}

// Subject returns the subject a batch is published on.
func (p *Publisher) Subject(batch *model.DecodedLogBatch) string {
	logstore := batch.Logstore
	if logstore == "" {
		logstore = model.DefaultLogstore
	}
	return p.prefix + "." + batch.Schema + "." + subjectToken(logstore)
}

// Consume publishes batch. Failures are logged and never reach the client.
func (p *Publisher) Consume(batch *model.DecodedLogBatch) {
	if batch == nil {
		return
	}
	data, err := json.Marshal(batch)
	if err != nil {
		p.logger.Error().Err(err).Str("schema", batch.Schema).Msg("encode batch")
		return
	}
	subject := p.Subject(batch)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("publish failed")
		return
	}
	p.logger.Debug().Str("subject", subject).Int("records", batch.Len()).Msg("published")
}

// subjectToken replaces characters that would split or wildcard a subject.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
