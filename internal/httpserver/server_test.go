package httpserver

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sls "github.com/aliyun/aliyun-log-go-sdk"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/proto"

	"github.com/tinytelemetry/logmock/internal/ingest"
	"github.com/tinytelemetry/logmock/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recorded struct {
	md   model.Metadata
	body []byte
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (r *captureRecorder) Record(md model.Metadata, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{md: md.Clone(), body: append([]byte(nil), body...)})
}

type captureSink struct {
	mu      sync.Mutex
	batches []*model.DecodedLogBatch
}

func (s *captureSink) Consume(batch *model.DecodedLogBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

type mockHarness struct {
	rec  *captureRecorder
	sink *captureSink
	r    http.Handler
}

func newMockHarness(t *testing.T, policy ingest.ErrorPolicy, maxBody int64) *mockHarness {
	t.Helper()
	return newMockHarnessWithSink(t, policy, maxBody, nil)
}

// newMockHarnessWithSink wires extra after the capturing sink.
func newMockHarnessWithSink(t *testing.T, policy ingest.ErrorPolicy, maxBody int64, extra ingest.BatchSink) *mockHarness {
	t.Helper()
	rec := &captureRecorder{}
	sink := &captureSink{}
	ep := ingest.NewEndpoint(ingest.Options{
		Sink:        ingest.MultiSink{sink, extra},
		Logger:      zerolog.Nop(),
		ErrorPolicy: policy,
	})
	srv := NewServer(Options{
		Endpoint:     ep,
		Recorder:     rec,
		MaxBodyBytes: maxBody,
		Logger:       zerolog.Nop(),
	})
	return &mockHarness{rec: rec, sink: sink, r: srv.Handler()}
}

func (h *mockHarness) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func logGroupBody(t *testing.T, key, value string) []byte {
	t.Helper()
	group := &sls.LogGroup{Logs: []*sls.Log{{
		Time:     proto.Uint32(1705312245),
		Contents: []*sls.LogContent{{Key: proto.String(key), Value: proto.String(value)}},
	}}}
	b, err := group.Marshal()
	if err != nil {
		t.Fatalf("marshal loggroup: %v", err)
	}
	return b
}

func oneRecordOTLP(t *testing.T) []byte {
	t.Helper()
	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					SeverityText: "WARN",
					Body:         &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "disk almost full"}},
				}},
			}},
		}},
	}
	b, err := proto.Marshal(req)
	if err != nil {
		t.Fatalf("marshal otlp: %v", err)
	}
	return b
}

func TestHello(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

	for _, target := range []string{"/", "/?x=1&y=2"} {
		w := h.do(http.MethodGet, target, nil, map[string]string{"X-Custom": "yes"})
		if w.Code != http.StatusOK || w.Body.String() != HelloBody {
			t.Errorf("GET %s = %d %q, want 200 %q", target, w.Code, w.Body.String(), HelloBody)
		}
	}
	if len(h.rec.entries) != 2 {
		t.Errorf("recorded %d requests, want 2", len(h.rec.entries))
	}
}

func TestLogGroupRoute(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

	w := h.do(http.MethodPost, "/logstores/test_logstore/shards/lb", logGroupBody(t, "k", "v"), map[string]string{
		"Content-Type":      "application/x-protobuf",
		"x-log-apiversion":  "0.6.0",
		"x-log-bodyrawsize": "0",
	})
	if w.Code != http.StatusOK || w.Body.String() != ingest.AckBody {
		t.Fatalf("POST = %d %q, want 200 ok", w.Code, w.Body.String())
	}
	if len(h.sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(h.sink.batches))
	}
	batch := h.sink.batches[0]
	if batch.Logstore != "test_logstore" || batch.Len() != 1 || batch.Records[0].Attributes["k"] != "v" {
		t.Errorf("unexpected batch: %+v", batch)
	}
}

func TestOTLPRoutes(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)
	body := oneRecordOTLP(t)

	for _, target := range []string{"/otupload", "/v1/logs"} {
		w := h.do(http.MethodPost, target, body, map[string]string{"Content-Type": "application/x-protobuf"})
		if w.Code != http.StatusOK || w.Body.String() != ingest.AckBody {
			t.Fatalf("POST %s = %d %q, want 200 ok", target, w.Code, w.Body.String())
		}
	}
	if len(h.sink.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(h.sink.batches))
	}
	if got := h.sink.batches[0].Records[0].Message; got != "disk almost full" {
		t.Errorf("message = %q", got)
	}
}

func TestGzipOTLPBody(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(oneRecordOTLP(t))
	zw.Close()

	w := h.do(http.MethodPost, "/otupload", buf.Bytes(), map[string]string{"Content-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(h.sink.batches) != 1 || h.sink.batches[0].Len() != 1 {
		t.Errorf("gzip body should decode to one record, got %d batches", len(h.sink.batches))
	}
	// The recorder sees the body as sent.
	if !bytes.Equal(h.rec.entries[0].body, buf.Bytes()) {
		t.Error("recorded body should be the raw compressed bytes")
	}
}

func TestGarbageAcknowledged(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

	for _, target := range []string{"/logstores/x/shards/lb", "/otupload"} {
		w := h.do(http.MethodPost, target, []byte("definitely not protobuf \xff\xfe"), nil)
		if w.Code != http.StatusOK || w.Body.String() != ingest.AckBody {
			t.Errorf("POST %s garbage = %d %q, want 200 ok", target, w.Code, w.Body.String())
		}
	}
	if len(h.sink.batches) != 0 {
		t.Errorf("garbage should not emit batches, got %d", len(h.sink.batches))
	}
	if len(h.rec.entries) != 2 {
		t.Errorf("garbage requests should still be recorded, got %d", len(h.rec.entries))
	}
}

func TestRejectPolicy(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyReject, 0)

	w := h.do(http.MethodPost, "/otupload", []byte{0xff, 0xff, 0xff}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "decode error:") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRecordedExactlyOnceWithMetadata(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)
	body := logGroupBody(t, "k", "v")

	w := h.do(http.MethodPost, "/logstores/test_logstore/shards/lb?a=1", body, map[string]string{
		"Content-Type":  "application/x-protobuf",
		"X-Request-Id":  "req-123",
		"Authorization": "LOG key:sig",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(h.rec.entries) != 1 {
		t.Fatalf("recorded %d times, want 1", len(h.rec.entries))
	}

	md := h.rec.entries[0].md
	want := map[string]string{
		model.MetaRequestMethod: "POST",
		model.MetaPathInfo:      "/logstores/test_logstore/shards/lb",
		model.MetaQueryString:   "a=1",
		model.MetaContentType:   "application/x-protobuf",
		model.MetaRequestID:     "req-123",
		"HTTP_AUTHORIZATION":    "LOG key:sig",
		"HTTP_HOST":             "example.com",
	}
	for k, v := range want {
		if md[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, md[k], v)
		}
	}
	if md[model.MetaServerProtocol] == "" || md[model.MetaRemoteAddr] == "" {
		t.Errorf("protocol/remote addr missing: %v", md)
	}
	if !bytes.Equal(h.rec.entries[0].body, body) {
		t.Error("recorded body differs from request body")
	}
	if got := w.Header().Get(headerRequestID); got != "req-123" {
		t.Errorf("echoed request id = %q, want req-123", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

	w := h.do(http.MethodGet, "/", nil, nil)
	id := w.Header().Get(headerRequestID)
	if len(id) != 36 {
		t.Fatalf("generated request id = %q, want uuid", id)
	}
	if h.rec.entries[0].md[model.MetaRequestID] != id {
		t.Errorf("recorded request id = %q, want %q", h.rec.entries[0].md[model.MetaRequestID], id)
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 16)

	w := h.do(http.MethodPost, "/otupload", bytes.Repeat([]byte("x"), 64), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
	if len(h.rec.entries) != 1 {
		t.Fatalf("oversized request recorded %d times, want 1", len(h.rec.entries))
	}
	if got := len(h.rec.entries[0].body); got != 16 {
		t.Errorf("recorded body = %d bytes, want the 16 read before the limit", got)
	}
	if len(h.sink.batches) != 0 {
		t.Errorf("oversized body emitted %d batches", len(h.sink.batches))
	}
}

func TestUnmatchedRequestsRecordedOnce(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"unknown path", http.MethodPost, "/nope", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/otupload", http.StatusMethodNotAllowed},
		{"trailing slash", http.MethodPost, "/otupload/", http.StatusNotFound},
		{"api without store", http.MethodGet, "/api/health", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMockHarness(t, ingest.ErrorPolicyAcknowledge, 0)

			w := h.do(tt.method, tt.target, []byte("x"), nil)
			if w.Code != tt.status {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.target, w.Code, tt.status)
			}
			if len(h.rec.entries) != 1 {
				t.Fatalf("recorded %d times, want 1", len(h.rec.entries))
			}
			entry := h.rec.entries[0]
			if entry.md[model.MetaRequestMethod] != tt.method || entry.md[model.MetaPathInfo] != tt.target {
				t.Errorf("metadata = %s %s", entry.md[model.MetaRequestMethod], entry.md[model.MetaPathInfo])
			}
			if string(entry.body) != "x" {
				t.Errorf("recorded body = %q, want x", entry.body)
			}
			if len(h.sink.batches) != 0 {
				t.Errorf("unmatched request emitted %d batches", len(h.sink.batches))
			}
		})
	}
}

func TestPanickingSinkRecovered(t *testing.T) {
	h := newMockHarnessWithSink(t, ingest.ErrorPolicyAcknowledge, 0, ingest.SinkFunc(func(*model.DecodedLogBatch) {
		panic("sink exploded")
	}))

	w := h.do(http.MethodPost, "/otupload", oneRecordOTLP(t), nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if len(h.rec.entries) != 1 {
		t.Errorf("recorded %d times, want 1", len(h.rec.entries))
	}

	// The server keeps serving after a recovered panic.
	w = h.do(http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != HelloBody {
		t.Errorf("GET / after panic = %d %q", w.Code, w.Body.String())
	}
}

func TestStartStop(t *testing.T) {
	ep := ingest.NewEndpoint(ingest.Options{Logger: zerolog.Nop()})
	srv := NewServer(Options{Addr: "127.0.0.1:0", Endpoint: ep, Logger: zerolog.Nop()})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
