package ingest

import (
	"sync"
	"testing"

	"github.com/tinytelemetry/logmock/internal/model"
)

type recordingSink struct {
	mu      sync.Mutex
	batches []*model.DecodedLogBatch
}

func (s *recordingSink) Consume(batch *model.DecodedLogBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

type recordAdder struct {
	records []*model.LogRecord
}

func (s *recordAdder) Add(record *model.LogRecord) {
	s.records = append(s.records, record)
}

type countingRecorder struct {
	mu    sync.Mutex
	calls int
	last  []byte
}

func (r *countingRecorder) Record(md model.Metadata, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = append([]byte(nil), body...)
}

func TestMultiSink_ForwardsToAllAndSkipsNil(t *testing.T) {
	t.Parallel()

	a := &recordingSink{}
	b := &recordingSink{}
	calls := 0
	sink := MultiSink{a, nil, b, SinkFunc(func(*model.DecodedLogBatch) { calls++ })}

	sink.Consume(&model.DecodedLogBatch{Schema: SchemaLogGroup})

	if len(a.batches) != 1 || len(b.batches) != 1 || calls != 1 {
		t.Fatalf("deliveries = %d/%d/%d, want 1/1/1", len(a.batches), len(b.batches), calls)
	}
}

func TestRecordFanout_AddsEveryRecord(t *testing.T) {
	t.Parallel()

	adder := &recordAdder{}
	RecordFanout{Sink: adder}.Consume(&model.DecodedLogBatch{
		Records: []*model.LogRecord{{Message: "a"}, {Message: "b"}},
	})

	if got := len(adder.records); got != 2 {
		t.Fatalf("records = %d, want 2", got)
	}
	if adder.records[1].Message != "b" {
		t.Errorf("second record = %q, want b", adder.records[1].Message)
	}
}

func TestRecordFanout_NilSafe(t *testing.T) {
	t.Parallel()

	RecordFanout{}.Consume(&model.DecodedLogBatch{Records: []*model.LogRecord{{}}})
	RecordFanout{Sink: &recordAdder{}}.Consume(nil)
}
