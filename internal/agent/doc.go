// Package agent keeps one worker registration alive against a job server.
//
// A Service owns a client.Conn at a time: it connects, drains server replies
// (acting on quiet and terminate beat states), and reconnects with backoff
// when the connection is lost. An optional admin HTTP listener exposes
// /healthz and /metrics.
package agent
