// Package effects manages the overlay effect presets, the dispatch queue
// drained into the overlay snapshot, and the trigger engine that fires
// presets from chat keywords, AI replies and manual API calls.
package effects

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Preset describes one emoji effect the overlay can render. Duration is in
// seconds, Area is "full", "center" or "bottom", Animation is one of
// fall, rise, scatter, flow, pop.
type Preset struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Emoji        []string `json:"emoji"`
	Animation    string   `json:"animation"`
	Duration     float64  `json:"duration"`
	Count        int      `json:"count"`
	Area         string   `json:"area"`
	TriggerWords []string `json:"trigger_words"`
	Enabled      bool     `json:"enabled"`
}

// presetOverride is the partial shape accepted from the configuration store.
// Absent fields keep the built-in value.
type presetOverride struct {
	Duration     *float64  `json:"duration,omitempty"`
	Count        *int      `json:"count,omitempty"`
	TriggerWords *[]string `json:"trigger_words,omitempty"`
	Enabled      *bool     `json:"enabled,omitempty"`
}

// Set holds the loaded presets. It is built once at startup and read-only
// afterwards; the engine never mutates it.
type Set struct {
	byID  map[string]Preset
	order []string
}

// DefaultSet returns the built-in emoji presets, all enabled.
func DefaultSet() *Set {
	s := &Set{byID: make(map[string]Preset, len(builtinPresets))}
	for _, p := range builtinPresets {
		p.Enabled = true
		s.byID[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	return s
}

// Get looks a preset up by id.
func (s *Set) Get(id string) (Preset, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// All returns the presets in their built-in order, overridden ids appended
// in sorted order if any were added.
func (s *Set) All() []Preset {
	out := make([]Preset, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// ApplyOverridesJSON merges a JSON object of per-preset overrides (as stored
// under the effect_presets configuration key) into the set. Unknown ids are
// rejected; an empty document is a no-op.
func (s *Set) ApplyOverridesJSON(raw string) error {
	if raw == "" {
		return nil
	}
	var overrides map[string]presetOverride
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return fmt.Errorf("parse preset overrides: %w", err)
	}
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p, ok := s.byID[id]
		if !ok {
			return fmt.Errorf("preset override for unknown id %q", id)
		}
		o := overrides[id]
		if o.Duration != nil && *o.Duration > 0 {
			p.Duration = *o.Duration
		}
		if o.Count != nil && *o.Count > 0 {
			p.Count = *o.Count
		}
		if o.TriggerWords != nil {
			p.TriggerWords = *o.TriggerWords
		}
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		s.byID[id] = p
	}
	return nil
}

var builtinPresets = []Preset{
	{
		ID:           "confetti",
		Label:        "🎉 紙吹雪",
		Emoji:        []string{"🎉", "🎊", "✨", "⭐", "🌟"},
		Animation:    "fall",
		Duration:     4.0,
		Count:        50,
		Area:         "full",
		TriggerWords: []string{"紙吹雪", "🎉", "おめでとう", "やったー", "すごい"},
	},
	{
		ID:           "fireworks",
		Label:        "🎆 花火",
		Emoji:        []string{"🎆", "🎇", "💥", "✨", "🌟"},
		Animation:    "scatter",
		Duration:     3.0,
		Count:        40,
		Area:         "center",
		TriggerWords: []string{"花火", "🎆", "盛り上がれ", "ファイヤー"},
	},
	{
		ID:           "heart",
		Label:        "💖 ハート",
		Emoji:        []string{"❤️", "💖", "💗", "💕", "💓", "🩷"},
		Animation:    "rise",
		Duration:     3.0,
		Count:        25,
		Area:         "bottom",
		TriggerWords: []string{"ハート", "💕", "かわいい", "好き"},
	},
	{
		ID:           "sparkle",
		Label:        "✨ キラキラ",
		Emoji:        []string{"✨", "⭐", "🌟", "💫"},
		Animation:    "pop",
		Duration:     4.0,
		Count:        35,
		Area:         "full",
		TriggerWords: []string{"キラキラ", "✨", "輝く", "美しい"},
	},
	{
		ID:           "welcome",
		Label:        "👋 歓迎",
		Emoji:        []string{"👋", "🙌", "🎉", "✨", "💐"},
		Animation:    "flow",
		Duration:     5.0,
		Count:        30,
		Area:         "full",
		TriggerWords: []string{"初見", "はじめまして", "よろしく", "👋"},
	},
	{
		ID:           "thanks",
		Label:        "🙏 感謝",
		Emoji:        []string{"🙏", "💕", "✨", "🌸", "💐"},
		Animation:    "rise",
		Duration:     3.5,
		Count:        20,
		Area:         "bottom",
		TriggerWords: []string{"ありがとう", "感謝", "thanks", "🙏"},
	},
	{
		ID:           "sakura",
		Label:        "🌸 桜吹雪",
		Emoji:        []string{"🌸", "🌷", "💮"},
		Animation:    "fall",
		Duration:     5.0,
		Count:        40,
		Area:         "full",
		TriggerWords: []string{"桜", "🌸", "春", "花見"},
	},
	{
		ID:           "lucky",
		Label:        "🍀 幸運",
		Emoji:        []string{"🍀", "⭐", "✨", "🌈"},
		Animation:    "scatter",
		Duration:     3.0,
		Count:        30,
		Area:         "center",
		TriggerWords: []string{"幸運", "🍀", "ラッキー", "当たり"},
	},
	{
		ID:           "fire",
		Label:        "🔥 炎上／盛り上がり",
		Emoji:        []string{"🔥", "💥", "⚡"},
		Animation:    "rise",
		Duration:     3.0,
		Count:        35,
		Area:         "bottom",
		TriggerWords: []string{"炎上", "🔥", "熱い", "盛り上がれ"},
	},
	{
		ID:           "snow",
		Label:        "❄️ 雪",
		Emoji:        []string{"❄️", "⛄", "🌨️"},
		Animation:    "fall",
		Duration:     5.0,
		Count:        45,
		Area:         "full",
		TriggerWords: []string{"雪", "❄️", "冬", "寒い"},
	},
	{
		ID:           "music",
		Label:        "🎵 音符",
		Emoji:        []string{"🎵", "🎶", "🎤", "🎸"},
		Animation:    "flow",
		Duration:     4.0,
		Count:        25,
		Area:         "full",
		TriggerWords: []string{"音楽", "🎵", "歌", "メロディ"},
	},
	{
		ID:           "lol",
		Label:        "😂 爆笑",
		Emoji:        []string{"😂", "🤣", "😆", "💀"},
		Animation:    "pop",
		Duration:     3.0,
		Count:        30,
		Area:         "full",
		TriggerWords: []string{"笑", "😂", "草", "www", "爆笑"},
	},
	{
		ID:           "clap",
		Label:        "👏 拍手",
		Emoji:        []string{"👏", "🙌", "✨"},
		Animation:    "flow",
		Duration:     3.0,
		Count:        35,
		Area:         "full",
		TriggerWords: []string{"拍手", "👏", "パチパチ", "すごい"},
	},
	{
		ID:           "halloween",
		Label:        "🎃 ハロウィン",
		Emoji:        []string{"🎃", "👻", "🦇", "🕷️"},
		Animation:    "scatter",
		Duration:     4.0,
		Count:        35,
		Area:         "full",
		TriggerWords: []string{"ハロウィン", "🎃", "Halloween"},
	},
	{
		ID:           "cat",
		Label:        "🐱 にゃんこ",
		Emoji:        []string{"🐱", "😺", "🐾", "💕"},
		Animation:    "pop",
		Duration:     4.0,
		Count:        20,
		Area:         "full",
		TriggerWords: []string{"猫", "🐱", "にゃん", "ねこ"},
	},
	{
		ID:           "money",
		Label:        "💰 お金",
		Emoji:        []string{"💰", "💵", "🪙", "✨"},
		Animation:    "fall",
		Duration:     4.0,
		Count:        40,
		Area:         "full",
		TriggerWords: []string{"お金", "💰", "札束", "金"},
	},
}
