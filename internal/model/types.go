package model

import "time"

// LogRecord represents a single decoded log entry.
// It is the canonical type for sinks, the capture store and the query API.
//
// ReceivedAt is transport metadata stamped by the endpoint when the request
// arrives; every other field is a pure function of the request body.
type LogRecord struct {
	ReceivedAt        time.Time         `json:"received_at" yaml:"received_at"`
	Timestamp         time.Time         `json:"timestamp,omitzero" yaml:"timestamp,omitempty"` // Zero value = no origin timestamp
	ObservedTimestamp time.Time         `json:"observed_timestamp,omitzero" yaml:"observed_timestamp,omitempty"`
	Level             string            `json:"level" yaml:"level"`         // TRACE/DEBUG/INFO/WARN/ERROR/FATAL
	LevelNum          int               `json:"level_num" yaml:"level_num"` // OTEL severity number
	Message           string            `json:"message,omitempty" yaml:"message,omitempty"`
	HasMessage        bool              `json:"has_message" yaml:"has_message"`
	Attributes        map[string]string `json:"attributes" yaml:"attributes"`
	Service           string            `json:"service,omitempty" yaml:"service,omitempty"`
	Hostname          string            `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	TraceID           string            `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
	SpanID            string            `json:"span_id,omitempty" yaml:"span_id,omitempty"`
	Source            string            `json:"source" yaml:"source"`     // schema the record was decoded from
	Logstore          string            `json:"logstore" yaml:"logstore"` // defaults to "default"
	EventID           string            `json:"event_id,omitempty" yaml:"-"`
}

// DecodedLogBatch is the parsed representation of one request body.
// It has no identity beyond the request that produced it.
type DecodedLogBatch struct {
	Schema   string            `json:"schema" yaml:"schema"`
	Route    string            `json:"route" yaml:"route"`
	Logstore string            `json:"logstore,omitempty" yaml:"logstore,omitempty"`
	Topic    string            `json:"topic,omitempty" yaml:"topic,omitempty"`
	Source   string            `json:"source,omitempty" yaml:"source,omitempty"`
	Tags     map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Records  []*LogRecord      `json:"records" yaml:"records"`
}

// Len returns the number of records in the batch.
func (b *DecodedLogBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// AttributeStat represents an attribute key-value pair and its count.
type AttributeStat struct {
	Key   string
	Value string
	Count int64
}

// DimensionCount represents grouped counts by a single dimension value
// (for example logstore or schema).
type DimensionCount struct {
	Value string
	Count int64
}
