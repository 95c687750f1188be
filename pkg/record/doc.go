// Package record defines the log record shipped by crogger: a structured
// core of recognized fields (level, message, timestamp, HTTP request
// details, user/session/request ids, duration) plus an open extension map.
//
// Normalize merges default fields, caller fields and a timestamp into one
// Record; Record.Map produces the mapping handed to an ingestion client.
package record
