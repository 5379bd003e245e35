package recorder

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logmock/internal/model"
)

func decodeEvents(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("unmarshal event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestLogger_RecordEmitsOneEventWithEnviron(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogger(zerolog.New(&buf), 0)

	md := model.Metadata{
		model.MetaRequestMethod: "POST",
		model.MetaPathInfo:      "/otupload",
		model.MetaRequestID:     "req-1",
	}
	md.SetHeader("X-Log-Compresstype", "lz4")
	rec.Record(md, []byte("hello\x00world"))

	events := decodeEvents(t, &buf)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev["message"] != "request" || ev["request_id"] != "req-1" || ev["path"] != "/otupload" {
		t.Errorf("unexpected event: %v", ev)
	}
	environ, ok := ev["environ"].(map[string]interface{})
	if !ok {
		t.Fatalf("environ = %T, want object", ev["environ"])
	}
	if environ["HTTP_X_LOG_COMPRESSTYPE"] != "lz4" || environ["REQUEST_METHOD"] != "POST" {
		t.Errorf("environ = %v", environ)
	}
	if ev["body"] != `"hello\x00world"` {
		t.Errorf("body = %v", ev["body"])
	}
	if ev["body_bytes"] != float64(11) || ev["body_truncated"] != false {
		t.Errorf("body_bytes/truncated = %v/%v", ev["body_bytes"], ev["body_truncated"])
	}
}

func TestLogger_RecordTruncatesBody(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogger(zerolog.New(&buf), 4)

	rec.Record(model.Metadata{}, []byte("abcdefgh"))

	ev := decodeEvents(t, &buf)[0]
	if ev["body"] != `"abcd"` || ev["body_truncated"] != true || ev["body_bytes"] != float64(8) {
		t.Errorf("unexpected truncation fields: %v", ev)
	}
}

func TestLogger_NegativeLimitLogsFullBody(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogger(zerolog.New(&buf), -1)

	body := strings.Repeat("x", DefaultBodyLimit+10)
	rec.Record(nil, []byte(body))

	ev := decodeEvents(t, &buf)[0]
	if ev["body_truncated"] != false {
		t.Errorf("body_truncated = %v, want false", ev["body_truncated"])
	}
}
