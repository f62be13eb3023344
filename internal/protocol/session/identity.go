package session

import (
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ClientIdentity describes the worker process to the job-server.
// PasswordHash is derived during the handshake and is empty until a nonce is seen.
type ClientIdentity struct {
	Hostname     string
	PID          int
	WID          string
	Labels       []string
	PasswordHash string
}

// NewIdentity discovers hostname and pid and assigns a random worker id.
func NewIdentity(labels ...string) ClientIdentity {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	return ClientIdentity{
		Hostname: host,
		PID:      os.Getpid(),
		WID:      NewWorkerID(),
		Labels:   NormalizeLabels(labels),
	}
}

// NewWorkerID returns a 32 character hex worker id.
func NewWorkerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NormalizeLabels trims, drops empties, and deduplicates labels in sorted order.
func NormalizeLabels(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, label := range in {
		v := strings.TrimSpace(label)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
