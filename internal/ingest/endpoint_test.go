package ingest

import (
	"bytes"
	"math/rand"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

func newTestEndpoint(policy ErrorPolicy) (*Endpoint, *countingRecorder, *recordingSink) {
	rec := &countingRecorder{}
	sink := &recordingSink{}
	ep := NewEndpoint(Options{
		Recorder:    rec,
		Sink:        sink,
		Logger:      zerolog.Nop(),
		ErrorPolicy: policy,
	})
	return ep, rec, sink
}

func TestEndpoint_AnyBytesAcknowledged(t *testing.T) {
	t.Parallel()

	ep, _, _ := newTestEndpoint(ErrorPolicyAcknowledge)
	rng := rand.New(rand.NewSource(1))

	bodies := [][]byte{nil, {}, []byte("garbage"), {0xff, 0x00, 0x13}}
	for i := 0; i < 50; i++ {
		b := make([]byte, rng.Intn(256))
		rng.Read(b)
		bodies = append(bodies, b)
	}

	for _, path := range []string{"/logstores/test_logstore/shards/lb", "/otupload"} {
		for _, body := range bodies {
			status, resp := ep.Handle(path, body, model.Metadata{})
			if status != http.StatusOK || resp != AckBody {
				t.Fatalf("Handle(%s, %x) = %d %q, want 200 ok", path, body, status, resp)
			}
		}
	}
}

func TestEndpoint_EmitsDecodedBatch(t *testing.T) {
	t.Parallel()

	ep, rec, sink := newTestEndpoint(ErrorPolicyAcknowledge)

	status, resp := ep.Handle("/logstores/test_logstore/shards/lb", oneRecordLogGroup(), model.Metadata{model.MetaRequestID: "r1"})
	if status != http.StatusOK || resp != AckBody {
		t.Fatalf("Handle = %d %q, want 200 ok", status, resp)
	}
	if rec.calls != 1 {
		t.Errorf("recorder calls = %d, want 1", rec.calls)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("emitted batches = %d, want 1", len(sink.batches))
	}

	batch := sink.batches[0]
	if batch.Route != RouteLogGroup {
		t.Errorf("route = %q, want %q", batch.Route, RouteLogGroup)
	}
	if batch.Len() != 1 || batch.Records[0].Attributes["k"] != "v" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if batch.Records[0].ReceivedAt.IsZero() {
		t.Error("record ReceivedAt should be stamped")
	}
}

func TestEndpoint_DecodeFailureStillRecordedAndAcknowledged(t *testing.T) {
	t.Parallel()

	ep, rec, sink := newTestEndpoint(ErrorPolicyAcknowledge)
	full := oneRecordLogGroup()
	truncated := full[:len(full)-1]

	status, resp := ep.Handle("/logstores/x/shards/lb", truncated, model.Metadata{})
	if status != http.StatusOK || resp != AckBody {
		t.Fatalf("Handle = %d %q, want 200 ok", status, resp)
	}
	if rec.calls != 1 || !bytes.Equal(rec.last, truncated) {
		t.Errorf("recorder calls = %d, last = %x", rec.calls, rec.last)
	}
	if len(sink.batches) != 0 {
		t.Errorf("emitted batches = %d, want 0 on decode failure", len(sink.batches))
	}
}

func TestEndpoint_RejectPolicy(t *testing.T) {
	t.Parallel()

	ep, _, sink := newTestEndpoint(ErrorPolicyReject)

	status, resp := ep.Handle("/otupload", []byte{0xff, 0xff, 0xff}, model.Metadata{})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if !strings.HasPrefix(resp, "decode error:") {
		t.Errorf("body = %q, want decode error prefix", resp)
	}

	status, resp = ep.Handle("/otupload", nil, model.Metadata{})
	if status != http.StatusOK || resp != AckBody {
		t.Errorf("valid empty body = %d %q, want 200 ok", status, resp)
	}
	if len(sink.batches) != 1 {
		t.Errorf("emitted batches = %d, want 1", len(sink.batches))
	}
}

func TestEndpoint_ProcessDoesNotRecord(t *testing.T) {
	t.Parallel()

	ep, rec, _ := newTestEndpoint(ErrorPolicyAcknowledge)
	ep.Process("/otupload", nil, model.Metadata{})
	if rec.calls != 0 {
		t.Errorf("recorder calls = %d, want 0", rec.calls)
	}
}

func TestEndpoint_UnknownPath(t *testing.T) {
	t.Parallel()

	ep, rec, _ := newTestEndpoint(ErrorPolicyAcknowledge)
	status, resp := ep.Handle("/nope", []byte("x"), model.Metadata{})
	if status != http.StatusNotFound || resp != NotFoundBody {
		t.Errorf("Handle = %d %q, want 404", status, resp)
	}
	if rec.calls != 1 {
		t.Errorf("recorder calls = %d, want 1", rec.calls)
	}
}

func TestEndpoint_IdenticalBodiesIdenticalOutput(t *testing.T) {
	t.Parallel()

	ep, _, sink := newTestEndpoint(ErrorPolicyAcknowledge)
	body := oneRecordLogGroup()

	s1, r1 := ep.Handle("/logstores/a/shards/lb", body, model.Metadata{})
	s2, r2 := ep.Handle("/logstores/a/shards/lb", body, model.Metadata{})
	if s1 != s2 || r1 != r2 {
		t.Fatalf("responses differ: %d %q vs %d %q", s1, r1, s2, r2)
	}
	if len(sink.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(sink.batches))
	}

	// ReceivedAt is arrival metadata; everything decoded from the body must match.
	strip := func(b *model.DecodedLogBatch) *model.DecodedLogBatch {
		out := *b
		out.Records = nil
		for _, r := range b.Records {
			c := *r
			c.ReceivedAt = time.Time{}
			out.Records = append(out.Records, &c)
		}
		return &out
	}
	if !reflect.DeepEqual(strip(sink.batches[0]), strip(sink.batches[1])) {
		t.Errorf("decoded output differs for identical bodies")
	}
}

func TestEndpoint_ConcurrentHandle(t *testing.T) {
	t.Parallel()

	ep, rec, sink := newTestEndpoint(ErrorPolicyAcknowledge)
	body := oneRecordLogGroup()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep.Handle("/logstores/c/shards/lb", body, model.Metadata{})
		}()
	}
	wg.Wait()

	if rec.calls != 32 {
		t.Errorf("recorder calls = %d, want 32", rec.calls)
	}
	if len(sink.batches) != 32 {
		t.Errorf("batches = %d, want 32", len(sink.batches))
	}
}
