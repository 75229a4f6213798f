package types

import "time"

// LogEntry records the outcome of one extraction for the result targets.
type LogEntry struct {
	Data      map[string]string // bucket, name, uri, status and either output or error
	Timestamp time.Time
}
