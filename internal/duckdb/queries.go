package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
// Used as defense-in-depth after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	// Remove block comments first.
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	// Remove line comments (-- to end of line).
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// logstoreFilter returns a WHERE clause and args when opts.Logstore is non-empty.
func logstoreFilter(opts QueryOpts) (clause string, args []interface{}) {
	if opts.Logstore != "" {
		return "WHERE logstore = ?", []interface{}{opts.Logstore}
	}
	return "", nil
}

// TopAttributes returns the most frequent attribute key-value pairs.
func (s *Store) TopAttributes(limit int, opts QueryOpts) ([]AttributeStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := logstoreFilter(opts)
	query := fmt.Sprintf(`
		WITH attrs AS (
			SELECT
				unnest(map_keys(CAST(attributes AS MAP(VARCHAR, VARCHAR)))) AS attr_key,
				unnest(map_values(CAST(attributes AS MAP(VARCHAR, VARCHAR)))) AS attr_value
			FROM logs %s
		)
		SELECT attr_key, attr_value, COUNT(*) AS count
		FROM attrs
		WHERE attr_key IS NOT NULL AND attr_value IS NOT NULL
		GROUP BY attr_key, attr_value
		ORDER BY count DESC, attr_key ASC, attr_value ASC
		LIMIT ?`, where)

	args := append(wArgs, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AttributeStat
	for rows.Next() {
		var as AttributeStat
		if err := rows.Scan(&as.Key, &as.Value, &as.Count); err != nil {
			s.logger.Warn().Err(err).Str("query", "TopAttributes").Msg("scan error")
			continue
		}
		results = append(results, as)
	}
	return results, rows.Err()
}

// SeverityCounts returns the total count per severity level.
func (s *Store) SeverityCounts(opts QueryOpts) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := logstoreFilter(opts)
	query := fmt.Sprintf(`SELECT level, COUNT(*) FROM logs %s GROUP BY level`, where)

	rows, err := s.db.QueryContext(ctx, query, wArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			s.logger.Warn().Err(err).Str("query", "SeverityCounts").Msg("scan error")
			continue
		}
		result[level] = count
	}
	return result, rows.Err()
}

// TotalLogCount returns the number of captured records.
func (s *Store) TotalLogCount(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := logstoreFilter(opts)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM logs %s`, where)

	var count int64
	err := s.db.QueryRowContext(ctx, query, wArgs...).Scan(&count)
	return count, err
}

// LogstoreCounts returns logstores by descending record count.
func (s *Store) LogstoreCounts() ([]DimensionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT logstore, COUNT(*) AS count
		FROM logs
		GROUP BY logstore
		ORDER BY count DESC, logstore ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DimensionCount
	for rows.Next() {
		var item DimensionCount
		if err := rows.Scan(&item.Value, &item.Count); err != nil {
			s.logger.Warn().Err(err).Str("query", "LogstoreCounts").Msg("scan error")
			continue
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// RecentRecords returns the newest captured records in arrival order.
func (s *Store) RecentRecords(limit int, opts QueryOpts) ([]LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := logstoreFilter(opts)
	inner := fmt.Sprintf(`SELECT id, event_id, received_at, timestamp, observed_timestamp, level, level_num,
		message, has_message, CAST(attributes AS VARCHAR) AS attributes, service, hostname,
		trace_id, span_id, source, logstore
		FROM logs %s ORDER BY id DESC LIMIT ?`, where)
	// Wrap so final results come back in insertion (ASC) order.
	query := `SELECT event_id, received_at, timestamp, observed_timestamp, level, level_num,
		message, has_message, attributes, service, hostname, trace_id, span_id, source, logstore
		FROM (` + inner + `) ORDER BY id ASC`

	args := append(wArgs, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LogRecord
	for rows.Next() {
		var r LogRecord
		var ts, observed sql.NullTime
		var attrsJSON string
		if err := rows.Scan(&r.EventID, &r.ReceivedAt, &ts, &observed, &r.Level, &r.LevelNum,
			&r.Message, &r.HasMessage, &attrsJSON, &r.Service, &r.Hostname,
			&r.TraceID, &r.SpanID, &r.Source, &r.Logstore); err != nil {
			s.logger.Warn().Err(err).Str("query", "RecentRecords").Msg("scan error")
			continue
		}
		if ts.Valid {
			r.Timestamp = ts.Time
		}
		if observed.Valid {
			r.ObservedTimestamp = observed.Time
		}
		// Always initialize to non-nil.
		r.Attributes = make(map[string]string)
		if attrsJSON != "" && attrsJSON != "{}" {
			if err := parseJSONMap(attrsJSON, r.Attributes); err != nil {
				s.logger.Warn().Err(err).Str("event_id", r.EventID).Msg("attributes not parseable")
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteBefore removes records received before cutoff and returns the number deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	// Reject semicolons to prevent statement chaining.
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Strip SQL comments so keywords hidden in comments are still caught.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	// Defense-in-depth: reject dangerous keywords after comment stripping.
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := 1000

	for rows.Next() && len(results) < maxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.logger.Warn().Err(err).Str("query", "ExecuteQuery").Msg("scan error")
			continue
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the capture table.
func (s *Store) GetSchemaDescription() string {
	return `Table 'logs': id (BIGINT), event_id (VARCHAR), received_at (TIMESTAMP), ` +
		`timestamp (TIMESTAMP, origin time), observed_timestamp (TIMESTAMP), ` +
		`level (VARCHAR: TRACE/DEBUG/INFO/WARN/ERROR/FATAL), level_num (INTEGER), ` +
		`message (VARCHAR), has_message (BOOLEAN), attributes (JSON), service (VARCHAR), ` +
		`hostname (VARCHAR), trace_id (VARCHAR), span_id (VARCHAR), ` +
		`source (VARCHAR: sls.loggroup/otlp.logs), logstore (VARCHAR).`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"logs"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}

// parseJSONMap parses a JSON string into a map[string]string.
func parseJSONMap(jsonStr string, dest map[string]string) error {
	// Simple JSON map parser for {"key":"value",...} format
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return err
	}
	for k, v := range raw {
		dest[k] = fmt.Sprintf("%v", v)
	}
	return nil
}
