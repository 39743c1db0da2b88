// Package progress carries batch progress events from the harvester to the
// status server, metrics, and logs. A Hub buffers events on a background
// goroutine and hands them to sinks in batches so harvesting never blocks on
// a slow consumer.
package progress
