package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/faktorykit/internal/protocol/resp"
)

// Verb identifies a message's purpose on the wire.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbHi
	VerbHello
	VerbOk
	VerbBeat
	VerbEnd
	VerbInfo
	VerbError
	// VerbData marks a length-prefixed text block; bulk frames carry no verb token.
	VerbData
)

var verbNames = map[Verb]string{
	VerbUnknown: "UNKNOWN",
	VerbHi:      "HI",
	VerbHello:   "HELLO",
	VerbOk:      "OK",
	VerbBeat:    "BEAT",
	VerbEnd:     "END",
	VerbInfo:    "INFO",
	VerbError:   "ERR",
	VerbData:    "DATA",
}

// tokenVerbs lists verbs that may appear as the leading token of a line frame.
var tokenVerbs = map[string]Verb{
	"HI":    VerbHi,
	"HELLO": VerbHello,
	"OK":    VerbOk,
	"BEAT":  VerbBeat,
	"END":   VerbEnd,
	"INFO":  VerbInfo,
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return fmt.Sprintf("VERB(%d)", int(v))
}

// ParseVerb resolves a line token case-insensitively. Unrecognized tokens yield VerbUnknown.
func ParseVerb(token string) Verb {
	if v, ok := tokenVerbs[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return v
	}
	return VerbUnknown
}

// Message is one verb+payload exchange unit. An empty Payload is the absent payload.
type Message struct {
	Verb    Verb
	Payload string
}

// NewMessage builds a message whose payload is the JSON encoding of v.
// A nil v produces a message without payload.
func NewMessage(verb Verb, v any) (Message, error) {
	if v == nil {
		return Message{Verb: verb}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: encode %s payload: %w", verb, err)
	}
	return Message{Verb: verb, Payload: string(raw)}, nil
}

// HasPayload reports whether the message carries payload text.
func (m Message) HasPayload() bool {
	return m.Payload != ""
}

// Decode unmarshals the JSON payload into v.
func (m Message) Decode(v any) error {
	if m.Verb == VerbUnknown || m.Payload == "" {
		return fmt.Errorf("%w: verb=%s", ErrNoPayload, m.Verb)
	}
	if err := json.Unmarshal([]byte(m.Payload), v); err != nil {
		return fmt.Errorf("%w: verb=%s: %v", ErrMalformedPayload, m.Verb, err)
	}
	return nil
}

// Line renders the two-token wire text "<VERB> <payload>".
func (m Message) Line() string {
	return m.Verb.String() + " " + m.Payload
}

// Frame renders the message as an inline command frame.
func (m Message) Frame() resp.Frame {
	return resp.Inline(m.Line())
}

// FromFrame translates one decoded frame into a message. It never fails:
// frames it cannot classify come back as VerbUnknown without payload.
func FromFrame(f resp.Frame) Message {
	switch f.Kind {
	case resp.KindSimple, resp.KindInline:
		return fromLine(f.Text)
	case resp.KindError:
		return Message{Verb: VerbError, Payload: f.Text}
	case resp.KindBulk:
		if f.Null {
			return Message{Verb: VerbData}
		}
		return Message{Verb: VerbData, Payload: f.Text}
	default:
		return Message{Verb: VerbUnknown}
	}
}

func fromLine(text string) Message {
	text = strings.TrimLeft(text, " \t")
	token, rest, _ := strings.Cut(text, " ")
	verb := ParseVerb(token)
	if verb == VerbUnknown {
		return Message{Verb: VerbUnknown}
	}
	// Only the single separator space is consumed; the payload is kept verbatim.
	return Message{Verb: verb, Payload: rest}
}
