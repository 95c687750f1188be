// Package crogger is a thin logging wrapper around an ingestion client.
//
// A Logger merges default fields into every record, stamps it with a
// timestamp, runs an optional Transform that may rewrite or drop it, and
// ships the result to a dataset in one attempt. Delivery failures never
// reach the caller: they go to Config.OnError, or to the diagnostic log.
//
// Construct one Logger with New and pass it to the code that logs. For
// code that cannot be handed a Logger, Init stores one process-wide and
// Default returns it.
package crogger
