package ingest

import (
	"fmt"
	"mime"
	"strings"

	"github.com/tinytelemetry/logmock/internal/model"
)

// Schema names.
const (
	SchemaLogGroup = "sls.loggroup"
	SchemaOTLPLogs = "otlp.logs"
)

// Decode stages reported by DecodeError.
const (
	StageDecompress = "decompress"
	StageUnmarshal  = "unmarshal"
)

// DecodeFunc turns an uncompressed body into a batch. Route parameters
// (for example the logstore name) are passed alongside the bytes.
type DecodeFunc func(body []byte, params map[string]string) (*model.DecodedLogBatch, error)

// Schema is a named wire schema with its binary and, optionally, JSON decoder.
type Schema struct {
	Name   string
	Binary DecodeFunc
	JSON   DecodeFunc
}

// DecodeError reports a body that could not be decompressed or did not parse
// against the schema bound to its route.
type DecodeError struct {
	Schema string
	Stage  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Schema, e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode decompresses body according to the request headers and parses it.
// Any failure is returned as a *DecodeError; a batch is only returned when the
// bytes parsed.
func (s Schema) Decode(body []byte, md model.Metadata, params map[string]string) (*model.DecodedLogBatch, error) {
	plain, err := decompress(body, md)
	if err != nil {
		return nil, &DecodeError{Schema: s.Name, Stage: StageDecompress, Err: err}
	}

	decode := s.Binary
	if s.JSON != nil && isJSONContentType(md.Header("Content-Type")) {
		decode = s.JSON
	}
	if decode == nil {
		return nil, &DecodeError{Schema: s.Name, Stage: StageUnmarshal, Err: fmt.Errorf("no decoder")}
	}

	batch, err := decode(plain, params)
	if err != nil {
		return nil, &DecodeError{Schema: s.Name, Stage: StageUnmarshal, Err: err}
	}
	batch.Schema = s.Name
	return batch, nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
	}
	return mediaType == "application/json"
}
