// Package session owns the connection-level wire shapes and session policy.
//
// Ownership boundary:
// - handshake challenge/hello payloads and password hashing
// - heartbeat beat/reply payloads
// - client identity
// - timeouts, heartbeat period, reconnect backoff, transport security policy
package session
