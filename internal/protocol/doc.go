// Package protocol owns the verb+payload message model and its error taxonomy.
//
// Ownership boundary:
// - verb lookup and rendering
// - frame <-> message translation
// - protocol-stage errors raised by the handshake
package protocol
