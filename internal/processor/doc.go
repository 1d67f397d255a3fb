// Package processor implements the per-partition ingestion engine.
//
// A Processor is driven by a partition host through Open, ProcessEvents and
// Close. Serialized events are packed into fixed-size frames drawn from a
// shared buffer pool. Full frames wait in an ordered queue until they are
// written to blob storage, after which the last written event is
// checkpointed and the buffers go back to the pool.
//
// # Triggers
//
// A flush is attempted when a record does not fit in the current frame, when
// the host reports a receive timeout (an empty batch), while the circuit
// breaker is stalled, and once on shutdown.
//
// # Failure handling
//
//   - A failed write keeps the queue and its buffers; the next trigger retries.
//   - An unserializable event is logged, counted and skipped.
//   - A checkpoint rejected because the lease moved is logged and ignored;
//     any other checkpoint failure is returned to the host.
//   - On lease loss the queue is dropped without writing.
//
// # Lifecycle
//
//	Opening -> Active <-> Stalling -> Closing -> Closed
//
// Stalling is entered while the circuit breaker holds a batch back.
package processor
