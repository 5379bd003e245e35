package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// InsertBuffer batches captured records and flushes them to DuckDB asynchronously.
// Add() never blocks on DuckDB writes - records are sent to a flush goroutine.
type InsertBuffer struct {
	writer        model.LogWriter
	logger        zerolog.Logger
	mu            sync.Mutex
	pending       []*LogRecord
	stopped       bool
	flushChan     chan []*LogRecord // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop
	stopOnce      sync.Once

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Logger         *zerolog.Logger
}

// NewInsertBuffer creates a new insert buffer that flushes to the writer.
// The flush goroutine processes batches asynchronously so Add() never blocks on IO.
func NewInsertBuffer(writer model.LogWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	logger := zerolog.Nop()
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
		if conf[0].Logger != nil {
			logger = *conf[0].Logger
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		logger:        logger.With().Str("component", "insert_buffer").Logger(),
		pending:       make([]*LogRecord, 0, batchSize),
		flushChan:     make(chan []*LogRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		b.logger.Warn().Int64("inline_flushes", count).Msg("flush channel full, flushing inline")
	}
}

// drainPending moves pending records to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = make([]*LogRecord, 0, b.maxBatch)
	b.enqueue(batch, "drain")
}

// enqueue hands a batch to the flush worker. Callers hold b.mu so the
// channel cannot be closed underneath them.
func (b *InsertBuffer) enqueue(batch []*LogRecord, origin string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.writer.InsertLogBatch(batch); err != nil {
			b.logger.Error().Err(err).Str("origin", origin).Msg("inline flush failed")
		}
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.writer.InsertLogBatch(batch); err != nil {
			b.logger.Error().Err(err).Int("records", len(batch)).Msg("flush failed")
		}
	}
}

// Add queues a record for batch insertion. This never blocks on DuckDB IO
// unless the flush queue is full. Records added after Stop are dropped.
// The record is shared with other sinks and must not be modified.
func (b *InsertBuffer) Add(record *LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending = append(b.pending, record)
	if len(b.pending) >= b.maxBatch {
		batch := b.pending
		b.pending = make([]*LogRecord, 0, b.maxBatch)
		b.enqueue(batch, "overflow")
	}
}

// Stop flushes remaining records and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// Wait for tickLoop's final drain before closing flushChan.
		b.tickWg.Wait()
		b.mu.Lock()
		b.stopped = true
		rest := b.pending
		b.pending = nil
		if len(rest) > 0 {
			b.enqueue(rest, "stop")
		}
		close(b.flushChan)
		b.mu.Unlock()
		b.wg.Wait()
	})
}

// InsertLogBatch appends a batch of records into DuckDB in a single transaction.
// If the batch fails, it is retried record-by-record to salvage as many
// records as possible.
func (s *Store) InsertLogBatch(records []*LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, records)
	if err == nil {
		return nil
	}

	var failed int
	for _, r := range records {
		if rerr := s.insertBatchTx(ctx, []*LogRecord{r}); rerr != nil {
			failed++
			s.logger.Warn().Err(rerr).Str("event_id", r.EventID).Msg("dropping record")
		}
	}
	if failed > 0 {
		s.logger.Warn().Int("dropped", failed).Int("total", len(records)).Msg("batch partially failed")
	}
	return nil
}

// insertBatchTx inserts records in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, records []*LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO logs (event_id, received_at, timestamp, observed_timestamp, level, level_num, message, has_message, attributes, service, hostname, trace_id, span_id, source, logstore) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		attrsJSON := []byte("{}")
		if len(r.Attributes) > 0 {
			if data, merr := json.Marshal(r.Attributes); merr == nil {
				attrsJSON = data
			}
		}

		receivedAt := r.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		logstore := r.Logstore
		if logstore == "" {
			logstore = model.DefaultLogstore
		}
		eventID := r.EventID
		if eventID == "" {
			eventID = uuid.NewString()
		}

		if _, err := stmt.ExecContext(
			ctx,
			eventID, receivedAt, nullableTime(r.Timestamp), nullableTime(r.ObservedTimestamp),
			r.Level, r.LevelNum, r.Message, r.HasMessage, string(attrsJSON),
			r.Service, r.Hostname, r.TraceID, r.SpanID, r.Source, logstore,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
