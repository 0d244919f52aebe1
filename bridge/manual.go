package bridge

import (
	"encoding/json"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceManual identifies the user-supplied URL connector.
const SourceManual = "manual"

// NewManual returns a connector for arbitrary websocket URLs. It tries the
// widest set of common field names so unknown formats still produce usable
// events.
func NewManual(bus *events.Bus) Connector {
	return newWSConnector(SourceManual, bus, parseManual, false)
}

func parseManual(raw []byte) []comment.Event {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return []comment.Event{comment.New(SourceManual, "", "", "", string(raw), raw)}
	}
	return []comment.Event{comment.New(
		SourceManual,
		pickString(obj, "platform", "service", "source"),
		pickString(obj, "userId", "user_id", "id"),
		pickString(obj, "user", "name", "userName", "user_name", "author", "displayName"),
		pickString(obj, "message", "text", "comment", "body", "content"),
		raw,
	)}
}
