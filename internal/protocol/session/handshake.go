package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/danmuck/faktorykit/internal/protocol"
)

// ProtocolVersion is the peer protocol version this client speaks.
const ProtocolVersion = 2

// Challenge is the server greeting carried by HI.
type Challenge struct {
	Version    int    `json:"v"`
	Nonce      string `json:"s,omitempty"`
	Iterations int    `json:"i,omitempty"`
}

// RequiresPassword reports whether the server asked for password authentication.
func (c Challenge) RequiresPassword() bool {
	return c.Nonce != ""
}

// Hello is the client reply carried by HELLO.
type Hello struct {
	Hostname     string   `json:"hostname"`
	PID          int      `json:"pid"`
	WID          string   `json:"wid"`
	Labels       []string `json:"labels"`
	PasswordHash string   `json:"pwdhash,omitempty"`
	Version      int      `json:"v"`
}

func NewHello(id ClientIdentity) Hello {
	labels := id.Labels
	if labels == nil {
		labels = []string{}
	}
	return Hello{
		Hostname:     id.Hostname,
		PID:          id.PID,
		WID:          id.WID,
		Labels:       labels,
		PasswordHash: id.PasswordHash,
		Version:      ProtocolVersion,
	}
}

// ParseChallenge decodes a HI message payload.
func ParseChallenge(msg protocol.Message) (Challenge, error) {
	var ch Challenge
	if err := msg.Decode(&ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// PasswordHash returns lowercase hex SHA-256 over the ASCII bytes of password+nonce.
// Iterations above one re-hash the raw digest that many times in total.
func PasswordHash(password, nonce string, iterations int) string {
	sum := sha256.Sum256([]byte(password + nonce))
	for i := 1; i < iterations; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return hex.EncodeToString(sum[:])
}
