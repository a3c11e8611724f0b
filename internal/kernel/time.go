package kernel

import "time"

// nowMillis is the timestamp unit used across every table (created_at,
// updated_at, last_accessed, ...): Unix milliseconds, fine-grained enough
// to order events created in the same second (tests create several
// memories back-to-back) while staying a plain int64 column.
func nowMillis() int64 { return time.Now().UnixMilli() }

// nowNano backs change-event ids; it only needs to be unique, not ordered.
func nowNano() int64 { return time.Now().UnixNano() }
