package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logmock/internal/model"
)

const (
	defaultRecordsLimit = 100
	maxRecordsLimit     = 1000

	defaultTopAttributes = 20
	maxTopAttributes     = 200
)

func (s *Server) handleHealth(c *gin.Context) {
	logCount, err := s.store.TotalLogCount(model.QueryOpts{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"log_count": logCount,
		"policy":    s.endpoint.Policy().String(),
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	description := s.store.GetSchemaDescription()

	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

func (s *Server) handleRecords(c *gin.Context) {
	limit := defaultRecordsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecordsLimit)
	}

	records, err := s.store.RecentRecords(limit, model.QueryOpts{Logstore: c.Query("logstore")})
	if err != nil {
		s.logger.Error().Err(err).Msg("recent records query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read records"})
		return
	}
	if records == nil {
		records = []model.LogRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// handleStats summarises captured records: totals per logstore, severity
// counts and the most frequent attribute pairs, optionally for one logstore.
func (s *Server) handleStats(c *gin.Context) {
	top := defaultTopAttributes
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		top = min(n, maxTopAttributes)
	}
	opts := model.QueryOpts{Logstore: c.Query("logstore")}

	total, err := s.store.TotalLogCount(opts)
	if err != nil {
		s.statsFailed(c, err, "total")
		return
	}
	logstores, err := s.store.LogstoreCounts()
	if err != nil {
		s.statsFailed(c, err, "logstores")
		return
	}
	severities, err := s.store.SeverityCounts(opts)
	if err != nil {
		s.statsFailed(c, err, "severity")
		return
	}
	attributes, err := s.store.TopAttributes(top, opts)
	if err != nil {
		s.statsFailed(c, err, "attributes")
		return
	}

	perLogstore := make(map[string]int64, len(logstores))
	for _, lc := range logstores {
		perLogstore[lc.Value] = lc.Count
	}
	topAttributes := make([]gin.H, 0, len(attributes))
	for _, a := range attributes {
		topAttributes = append(topAttributes, gin.H{"key": a.Key, "value": a.Value, "count": a.Count})
	}
	if severities == nil {
		severities = map[string]int64{}
	}

	c.JSON(http.StatusOK, gin.H{
		"logstore":       opts.Logstore,
		"total":          total,
		"logstores":      perLogstore,
		"severity":       severities,
		"top_attributes": topAttributes,
	})
}

func (s *Server) statsFailed(c *gin.Context, err error, part string) {
	s.logger.Error().Err(err).Str("part", part).Msg("stats query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
}
