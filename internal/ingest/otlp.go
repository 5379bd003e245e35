package ingest

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/tinytelemetry/logmock/internal/logparse"
	"github.com/tinytelemetry/logmock/internal/model"
)

// OTLPLogsSchema returns the schema for ExportLogsServiceRequest bodies,
// accepting both binary protobuf and the OTLP JSON encoding.
func OTLPLogsSchema() Schema {
	return Schema{
		Name:   SchemaOTLPLogs,
		Binary: DecodeOTLPLogs,
		JSON:   DecodeOTLPLogsJSON,
	}
}

// DecodeOTLPLogs parses a binary ExportLogsServiceRequest.
func DecodeOTLPLogs(body []byte, params map[string]string) (*model.DecodedLogBatch, error) {
	req := &collogspb.ExportLogsServiceRequest{}
	if err := proto.Unmarshal(body, req); err != nil {
		return nil, err
	}
	return ConvertOTLPLogs(req), nil
}

// DecodeOTLPLogsJSON parses an ExportLogsServiceRequest in the OTLP JSON encoding.
func DecodeOTLPLogsJSON(body []byte, params map[string]string) (*model.DecodedLogBatch, error) {
	req := &collogspb.ExportLogsServiceRequest{}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(body, req); err != nil {
		return nil, err
	}
	return ConvertOTLPLogs(req), nil
}

// ConvertOTLPLogs flattens resource and scope attributes into each record.
func ConvertOTLPLogs(req *collogspb.ExportLogsServiceRequest) *model.DecodedLogBatch {
	batch := &model.DecodedLogBatch{
		Route:    RouteOTUpload,
		Logstore: model.DefaultLogstore,
		Records:  []*model.LogRecord{},
	}

	for _, resourceLogs := range req.GetResourceLogs() {
		inherited := otelAttributes(resourceLogs.GetResource().GetAttributes())
		for _, scopeLogs := range resourceLogs.GetScopeLogs() {
			scopeAttrs := cloneAttributes(inherited)
			if scope := scopeLogs.GetScope(); scope != nil {
				if name := scope.GetName(); name != "" {
					scopeAttrs["otel.scope.name"] = name
				}
				if version := scope.GetVersion(); version != "" {
					scopeAttrs["otel.scope.version"] = version
				}
				mergeAttributes(scopeAttrs, otelAttributes(scope.GetAttributes()))
			}
			for _, lr := range scopeLogs.GetLogRecords() {
				batch.Records = append(batch.Records, convertOTELLogRecord(lr, scopeAttrs))
			}
		}
	}
	return batch
}

func convertOTELLogRecord(lr *logspb.LogRecord, inherited map[string]string) *model.LogRecord {
	attributes := cloneAttributes(inherited)
	mergeAttributes(attributes, otelAttributes(lr.GetAttributes()))

	if flags := lr.GetFlags(); flags != 0 {
		attributes["trace.flags"] = strconv.FormatUint(uint64(flags), 10)
	}
	if dropped := lr.GetDroppedAttributesCount(); dropped != 0 {
		attributes["otel.dropped_attributes_count"] = strconv.FormatUint(uint64(dropped), 10)
	}
	if name := lr.GetEventName(); name != "" {
		attributes["event.name"] = name
	}

	record := &model.LogRecord{
		Attributes: attributes,
		Source:     SchemaOTLPLogs,
		Logstore:   model.DefaultLogstore,
	}

	if ts := lr.GetTimeUnixNano(); ts != 0 {
		record.Timestamp = time.Unix(0, int64(ts))
	}
	if ts := lr.GetObservedTimeUnixNano(); ts != 0 {
		record.ObservedTimestamp = time.Unix(0, int64(ts))
	}
	if traceID := lr.GetTraceId(); len(traceID) > 0 {
		record.TraceID = hex.EncodeToString(traceID)
	}
	if spanID := lr.GetSpanId(); len(spanID) > 0 {
		record.SpanID = hex.EncodeToString(spanID)
	}

	if body := lr.GetBody(); body != nil {
		record.Message = otelAnyValue(body)
		record.HasMessage = true
	}

	severityNumber := int(lr.GetSeverityNumber())
	severity := lr.GetSeverityText()
	if severity == "" && severityNumber > 0 {
		severity = logparse.LevelFromNumber(severityNumber)
	}
	if severity == "" {
		severity = model.DefaultLevel
	}
	record.Level = logparse.NormalizeSeverity(severity)
	if severityNumber == 0 {
		severityNumber = logparse.LevelNumber(record.Level)
	}
	record.LevelNum = severityNumber

	record.Service = ExtractService(attributes)
	record.Hostname = firstAttribute(attributes, "host.name", "host")
	return record
}

func otelAttributes(kvs []*commonpb.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if kv.GetKey() == "" {
			continue
		}
		out[kv.GetKey()] = otelAnyValue(kv.GetValue())
	}
	return out
}

func otelAnyValue(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		parts := make([]string, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			if part := otelAnyValue(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ",")
	case *commonpb.AnyValue_KvlistValue:
		kv := otelAttributes(val.KvlistValue.GetValues())
		if b, err := json.Marshal(kv); err == nil {
			return string(b)
		}
		return ""
	default:
		return ""
	}
}
