// Package progress carries per-item run events from the pipeline to pluggable
// sinks. Events are batched on a background goroutine so workers never block
// on a slow sink.
package progress
