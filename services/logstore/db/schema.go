package db

import (
	_ "embed"
)

//go:embed schema.sql
var Schema string

// Log names one of the append-only tables.
type Log string

const (
	NormalizedLog Log = "normalized_log"
	RawLog        Log = "raw_log"
)
