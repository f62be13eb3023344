package client

// State is the connection lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateAwaitingChallenge
	StateChallengeReceived
	StateHelloSent
	StateReady
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateAwaitingChallenge: "awaiting_challenge",
	StateChallengeReceived: "challenge_received",
	StateHelloSent:         "hello_sent",
	StateReady:             "ready",
	StateFailed:            "failed",
	StateClosed:            "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}
