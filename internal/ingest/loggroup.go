package ingest

import (
	"strings"
	"time"

	sls "github.com/aliyun/aliyun-log-go-sdk"

	"github.com/tinytelemetry/logmock/internal/logparse"
	"github.com/tinytelemetry/logmock/internal/model"
)

// tagPrefix is the collector convention for group tags exposed as fields.
const tagPrefix = "__tag__:"

// LogGroupSchema returns the schema for the shard write API body.
func LogGroupSchema() Schema {
	return Schema{
		Name:   SchemaLogGroup,
		Binary: DecodeLogGroup,
	}
}

// DecodeLogGroup parses a LogGroup body. The {name} route parameter, when
// present, becomes the batch logstore.
func DecodeLogGroup(body []byte, params map[string]string) (*model.DecodedLogBatch, error) {
	group := &sls.LogGroup{}
	if err := group.Unmarshal(body); err != nil {
		return nil, err
	}

	logstore := params["name"]
	if logstore == "" {
		logstore = model.DefaultLogstore
	}

	batch := &model.DecodedLogBatch{
		Route:    RouteLogGroup,
		Logstore: logstore,
		Topic:    group.GetTopic(),
		Source:   group.GetSource(),
		Records:  make([]*model.LogRecord, 0, len(group.GetLogs())),
	}

	if tags := group.GetLogTags(); len(tags) > 0 {
		batch.Tags = make(map[string]string, len(tags))
		for _, tag := range tags {
			batch.Tags[strings.TrimPrefix(tag.GetKey(), tagPrefix)] = tag.GetValue()
		}
	}

	for _, entry := range group.GetLogs() {
		batch.Records = append(batch.Records, convertLog(entry, batch))
	}
	return batch, nil
}

func convertLog(entry *sls.Log, batch *model.DecodedLogBatch) *model.LogRecord {
	attributes := make(map[string]string, len(entry.GetContents()))
	for _, c := range entry.GetContents() {
		attributes[c.GetKey()] = c.GetValue()
	}

	record := &model.LogRecord{
		Attributes: attributes,
		Source:     SchemaLogGroup,
		Logstore:   batch.Logstore,
	}

	if entry.GetTime() > 0 || entry.TimeNs != nil {
		record.Timestamp = time.Unix(int64(entry.GetTime()), int64(entry.GetTimeNs()))
	}

	for _, key := range []string{"content", "message", "msg"} {
		if v, ok := attributes[key]; ok {
			record.Message = v
			record.HasMessage = true
			break
		}
	}

	level := firstAttribute(attributes, "__level__", "level", "severity")
	if level == "" && record.HasMessage {
		level = logparse.ExtractSeverityFromText(record.Message)
	}
	if level == "" {
		level = model.DefaultLevel
	}
	record.Level = logparse.NormalizeSeverity(level)
	record.LevelNum = logparse.LevelNumber(record.Level)

	record.Service = ExtractService(attributes)
	record.Hostname = firstAttribute(attributes, "__hostname__", "hostname", "host")
	if record.Hostname == "" {
		record.Hostname = batch.Tags["__hostname__"]
	}
	return record
}
