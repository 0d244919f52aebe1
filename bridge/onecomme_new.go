package bridge

import (
	"encoding/json"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceOneCommeNew identifies the OneComme v5 subscription feed
// (ws://127.0.0.1:11180/sub), which wraps comments in a typed envelope.
const SourceOneCommeNew = "onecomme_new"

// NewOneCommeNew returns the OneComme v5 connector.
func NewOneCommeNew(bus *events.Bus) Connector {
	return newWSConnector(SourceOneCommeNew, bus, parseOneCommeNew, false)
}

type onecommeEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Comments []struct {
			Service string          `json:"service"`
			Data    json.RawMessage `json:"data"`
		} `json:"comments"`
	} `json:"data"`
}

// parseOneCommeNew unwraps {type:"comments", data:{comments:[...]}} frames.
// Every comment entry yields one event; frames of other types yield none.
func parseOneCommeNew(raw []byte) []comment.Event {
	var env onecommeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "comments" {
		return nil
	}
	out := make([]comment.Event, 0, len(env.Data.Comments))
	for _, c := range env.Data.Comments {
		var obj map[string]any
		if err := json.Unmarshal(c.Data, &obj); err != nil {
			continue
		}
		out = append(out, comment.New(
			SourceOneCommeNew,
			c.Service,
			pickString(obj, "userId", "user_id", "id"),
			pickString(obj, "name", "displayName"),
			pickString(obj, "comment", "message", "text"),
			c.Data,
		))
	}
	return out
}
