package bridge

import (
	"encoding/json"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceMultiViewer identifies multi comment viewer websocket feeds.
const SourceMultiViewer = "multiviewer"

// NewMultiViewer returns the multi comment viewer connector.
func NewMultiViewer(bus *events.Bus) Connector {
	return newWSConnector(SourceMultiViewer, bus, parseMultiViewer, false)
}

// parseMultiViewer accepts the camelCase/snake_case field variants the viewer
// emits. Non-JSON frames become plain-text events.
func parseMultiViewer(raw []byte) []comment.Event {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return []comment.Event{comment.New(SourceMultiViewer, "", "", "", string(raw), raw)}
	}
	return []comment.Event{comment.New(
		SourceMultiViewer,
		pickString(obj, "platform", "service"),
		pickString(obj, "userId", "user_id"),
		pickString(obj, "userName", "user_name", "name"),
		pickString(obj, "comment", "message", "text"),
		raw,
	)}
}
