package reply

import (
	"errors"

	"github.com/jinzhu/copier"
)

var (
	// ErrRequestTimeout is returned when the reply service does not answer
	// within the dispatch deadline.
	ErrRequestTimeout = errors.New("reply request timed out")
	// ErrNetworkUnreachable is returned when the reply service cannot be
	// reached at all.
	ErrNetworkUnreachable = errors.New("reply service unreachable")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type HistoryTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Meta carries session routing information the reply service uses to look up
// long-term memory for the speaker.
type Meta struct {
	ExplorerID string `json:"explorerId"`
	SessionID  string `json:"sessionId"`
	MemoryMode string `json:"memoryMode"`
}

type Request struct {
	Message             string         `json:"message"`
	UserID              string         `json:"userId"`
	UserName            string         `json:"userName,omitempty"`
	SessionID           string         `json:"sessionId"`
	Mode                string         `json:"mode"`
	Meta                Meta           `json:"meta"`
	IsVoiceMode         bool           `json:"isVoiceMode"`
	FieldState          map[string]any `json:"fieldState,omitempty"`
	ConversationHistory []HistoryTurn  `json:"conversationHistory"`
	Stream              bool           `json:"stream,omitempty"`
}

// SnapshotHistory deep-copies the given turns into the request so the caller
// can keep appending to its live history while the request is in flight.
func (r *Request) SnapshotHistory(turns []HistoryTurn) error {
	r.ConversationHistory = make([]HistoryTurn, 0, len(turns))
	return copier.Copy(&r.ConversationHistory, &turns)
}

// Metadata is the structured annotation the reply service attaches to a
// response. The jsonschema tags drive the schema-constrained request mode.
type Metadata struct {
	Confidence      float64        `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
	ArchetypalField string         `json:"archetypalField,omitempty"`
	FieldState      map[string]any `json:"fieldState,omitempty"`
}

type Response struct {
	Response   string    `json:"response"`
	Message    string    `json:"message"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	OpusAxioms []string  `json:"opusAxioms,omitempty"`
	TurnID     string    `json:"turnId,omitempty"`
}

// Text returns the reply text regardless of which field the service used.
func (r *Response) Text() string {
	if r.Response != "" {
		return r.Response
	}
	return r.Message
}
