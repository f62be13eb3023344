package session

import (
	"fmt"

	"github.com/danmuck/faktorykit/internal/protocol"
)

// Beat is the periodic keep-alive payload carried by BEAT.
type Beat struct {
	WID string `json:"wid"`
}

func NewBeat(id ClientIdentity) Beat {
	return Beat{WID: id.WID}
}

// BeatState is a state change the server may request in a beat reply.
type BeatState string

const (
	BeatStateNone      BeatState = ""
	BeatStateQuiet     BeatState = "quiet"
	BeatStateTerminate BeatState = "terminate"
)

// BeatReply is the server's answer to BEAT: a bare OK or a bulk {"state": ...}.
type BeatReply struct {
	State BeatState `json:"state"`
}

// ParseBeatReply interprets a message read after a beat.
func ParseBeatReply(msg protocol.Message) (BeatReply, error) {
	switch msg.Verb {
	case protocol.VerbOk:
		return BeatReply{}, nil
	case protocol.VerbData:
		var reply BeatReply
		if err := msg.Decode(&reply); err != nil {
			return BeatReply{}, err
		}
		return reply, nil
	default:
		return BeatReply{}, fmt.Errorf("session: unexpected beat reply verb=%s", msg.Verb)
	}
}
