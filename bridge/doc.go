// Package bridge contains the comment connectors and the manager that owns
// their lifecycle ("multi comment bridge").
//
// A connector adapts one external comment source to the normalized
// comment.Event shape and publishes every received message on the event bus:
//   - onecomme_legacy: the classic OneComme websocket feed with exponential
//     backoff reconnect
//   - onecomme_new: the OneComme v5 /sub envelope
//   - multiviewer: multi comment viewer websocket feeds
//   - manual: any user-supplied websocket URL, with the widest field fallback
//   - tcpline: newline-delimited JSON over a plain TCP socket
//   - twitch: direct Twitch IRC via go-twitch-irc
//
// The Manager resolves connector kinds through an explicit capability-checked
// factory at startup; a source that cannot run (missing credentials) is
// reported as a disabled capability, never a runtime probe failure. Connector
// state ({url, connected}) is held per service record inside the Manager.
package bridge
