// Package client owns one job-server connection.
//
// Lifecycle order:
// - idle -> awaiting challenge -> challenge received -> hello sent -> ready
//
// - any step may end in failed; close ends in closed.
//
// Concurrency:
// - writes are serialized one whole frame at a time; the heartbeat shares the write path.
//
// - reads are single-consumer and never take the write lock.
//
// - Close stops the heartbeat, closes the transport once, and waits for the heartbeat to exit.
package client
