package ingest

import "github.com/tinytelemetry/logmock/internal/model"

// Recorder receives every request's metadata and raw body before any decode
// attempt. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(md model.Metadata, body []byte)
}

// BatchSink consumes successfully decoded batches.
type BatchSink interface {
	Consume(batch *model.DecodedLogBatch)
}

// SinkFunc adapts a function to BatchSink.
type SinkFunc func(batch *model.DecodedLogBatch)

// Consume calls f(batch).
func (f SinkFunc) Consume(batch *model.DecodedLogBatch) { f(batch) }

// MultiSink forwards each batch to every sink in order. Nil entries are skipped.
type MultiSink []BatchSink

// Consume forwards batch to all sinks.
func (m MultiSink) Consume(batch *model.DecodedLogBatch) {
	for _, sink := range m {
		if sink != nil {
			sink.Consume(batch)
		}
	}
}

// RecordSink accepts decoded records one at a time (for example the capture
// store's insert buffer).
type RecordSink interface {
	Add(record *model.LogRecord)
}

// RecordFanout adapts a RecordSink into a BatchSink.
type RecordFanout struct {
	Sink RecordSink
}

// Consume adds every record of batch to the wrapped sink.
func (r RecordFanout) Consume(batch *model.DecodedLogBatch) {
	if r.Sink == nil || batch == nil {
		return
	}
	for _, record := range batch.Records {
		r.Sink.Add(record)
	}
}
