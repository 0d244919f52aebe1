package bridge

import (
	"encoding/json"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceOneCommeLegacy identifies the classic OneComme websocket feed
// (ws://127.0.0.1:22280/ws). It is the only connector that auto-reconnects,
// with exponential backoff capped at 10s.
const SourceOneCommeLegacy = "onecomme_legacy"

// NewOneCommeLegacy returns the legacy OneComme connector.
func NewOneCommeLegacy(bus *events.Bus) Connector {
	return newWSConnector(SourceOneCommeLegacy, bus, parseOneCommeLegacy, true)
}

// parseOneCommeLegacy handles the loose legacy payload: text under any of
// text/message/body/comment, user under user/name/author. Missing identity
// fields stay empty. Non-JSON frames become plain-text events so nothing is
// lost.
func parseOneCommeLegacy(raw []byte) []comment.Event {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return []comment.Event{comment.New(SourceOneCommeLegacy, "", "", "", string(raw), raw)}
	}
	return []comment.Event{comment.New(
		SourceOneCommeLegacy,
		pickString(obj, "platform"),
		pickString(obj, "user_id"),
		pickString(obj, "user", "name", "author"),
		pickString(obj, "text", "message", "body", "comment"),
		raw,
	)}
}
