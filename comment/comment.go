// Package comment defines the normalized comment event produced by every
// connector and consumed by the overlay, AI and TTS pipelines. The JSON field
// names (including the legacy text/user mirrors) are a wire contract shared
// with the overlay renderer and must not change.
package comment

import "encoding/json"

// Event is the normalized shape of one received chat comment.
// Source identifies exactly one connector instance. Raw preserves the
// original payload unmodified for downstream inspection.
type Event struct {
	Source   string          `json:"source"`
	Platform string          `json:"platform"`
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Message  string          `json:"message"`
	Raw      json.RawMessage `json:"raw"`

	// Legacy mirrors of Message and UserName; older overlay consumers read
	// these names and both sets are populated simultaneously.
	Text string `json:"text"`
	User string `json:"user"`
}

// New builds an Event with the legacy mirrors filled in and missing fields
// defaulted (empty identity strings, platform "unknown"). raw should be the
// payload exactly as received; non-JSON payloads are wrapped as a JSON
// string so the original bytes survive inside a valid document.
func New(source, platform, userID, userName, message string, raw []byte) Event {
	if platform == "" {
		platform = "unknown"
	}
	if !json.Valid(raw) {
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			quoted = []byte(`""`)
		}
		raw = quoted
	}
	return Event{
		Source:   source,
		Platform: platform,
		UserID:   userID,
		UserName: userName,
		Message:  message,
		Raw:      json.RawMessage(raw),
		Text:     message,
		User:     userName,
	}
}
