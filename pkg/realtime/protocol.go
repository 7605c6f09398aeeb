package realtime

import (
	"encoding/json"
)

const (
	phoenixTopic = "phoenix"

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	replyOK = "ok"
)

// Message is one Phoenix channel frame.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	PostgresChanges []changeBinding `json:"postgres_changes"`
}

type changeBinding struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data struct {
		Type            string         `json:"type"`
		Table           string         `json:"table"`
		Schema          string         `json:"schema"`
		Record          map[string]any `json:"record"`
		CommitTimestamp string         `json:"commit_timestamp"`
	} `json:"data"`
}
