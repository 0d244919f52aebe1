package events

// ConnectorStatus is published on TopicConnectorStatus whenever a connector
// changes state. State is one of "connected", "disconnected", "error".
type ConnectorStatus struct {
	State     string `json:"state"`
	URL       string `json:"url"`
	Connector string `json:"connector"`
	Error     string `json:"error,omitempty"`
}

// TTSRequest asks the voice pipeline to speak text. Role distinguishes AI
// replies from read-aloud viewer comments for voice selection.
type TTSRequest struct {
	Text    string `json:"text"`
	Role    string `json:"role"`
	VoiceID int    `json:"voice_id"`
}

// TTSSpoken reports the outcome of one speak attempt.
type TTSSpoken struct {
	Text    string `json:"text"`
	Method  string `json:"method"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// EffectTrigger announces that an overlay effect was dispatched. Trigger is
// one of "chat", "ai", "manual"; Source names the user or caller behind it.
type EffectTrigger struct {
	PresetID string `json:"preset_id"`
	Trigger  string `json:"trigger"`
	Source   string `json:"source"`
}

// AIResponse is an AI-generated reply to a comment.
type AIResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	Model     string `json:"model"`
}
