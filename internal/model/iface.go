package model

// QueryOpts holds optional filters applied to most queries.
type QueryOpts struct {
	Logstore string // empty = all logstores
}

// LogQuerier provides read-only queries on captured records.
type LogQuerier interface {
	TotalLogCount(opts QueryOpts) (int64, error)
	TopAttributes(limit int, opts QueryOpts) ([]AttributeStat, error)
	LogstoreCounts() ([]DimensionCount, error)
	SeverityCounts(opts QueryOpts) (map[string]int64, error)
	RecentRecords(limit int, opts QueryOpts) ([]LogRecord, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// LogWriter provides append-oriented write operations for decoded records.
type LogWriter interface {
	InsertLogBatch(records []*LogRecord) error
}

// ReadAPI is the unified read contract for the HTTP query surface.
type ReadAPI interface {
	LogQuerier
	SchemaQuerier
}
