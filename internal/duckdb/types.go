package duckdb

import "github.com/tinytelemetry/logmock/internal/model"

// Type aliases re-export model types so store method signatures read locally.
type LogRecord = model.LogRecord
type AttributeStat = model.AttributeStat
type DimensionCount = model.DimensionCount
