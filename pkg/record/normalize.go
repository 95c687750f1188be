package record

import "time"

// Normalize merges defaults and caller fields into one record. Caller fields
// override defaults key-for-key. The timestamp is the caller's, or now when
// the caller did not supply one. An empty level falls back to DefaultLevel.
// Neither input map is modified.
func Normalize(defaults Fields, fields Fields, now time.Time) Record {
	merged := make(Fields, len(defaults)+len(fields)+1)
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	rec := FromFields(merged)
	// A timestamp carried only by the defaults does not count.
	if _, callerSet := fields[KeyTimestamp]; !callerSet || rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.Level == "" {
		rec.Level = DefaultLevel
	}
	return rec
}
