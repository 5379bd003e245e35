package recorder

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/logmock/internal/model"
)

// Printer writes each decoded batch as a YAML document.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	logger zerolog.Logger
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, logger zerolog.Logger) *Printer {
	return &Printer{
		w:      w,
		logger: logger.With().Str("component", "printer").Logger(),
	}
}

// Consume prints batch. Encoding or write failures are logged and dropped.
func (p *Printer) Consume(batch *model.DecodedLogBatch) {
	if batch == nil {
		return
	}
	data, err := yaml.Marshal(batch)
	if err != nil {
		p.logger.Error().Err(err).Str("schema", batch.Schema).Msg("yaml encode failed")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, "---\n"); err != nil {
		p.logger.Error().Err(err).Msg("print failed")
		return
	}
	if _, err := p.w.Write(data); err != nil {
		p.logger.Error().Err(err).Msg("print failed")
	}
}
