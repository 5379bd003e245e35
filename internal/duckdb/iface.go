package duckdb

import "github.com/tinytelemetry/logmock/internal/model"

// Type aliases re-export model interfaces for consumers that import duckdb.
type QueryOpts = model.QueryOpts
type LogQuerier = model.LogQuerier
type SchemaQuerier = model.SchemaQuerier
type LogWriter = model.LogWriter
type ReadAPI = model.ReadAPI

var _ ReadAPI = (*Store)(nil)
var _ LogWriter = (*Store)(nil)
