// Package events implements the in-process publish/subscribe bus that
// decouples connectors from their consumers (overlay, AI replies, TTS,
// effects). Publish never blocks: a subscriber whose buffer is full loses
// that message and the drop is counted.
package events

import (
	"log/slog"
	"sync"
)

const (
	TopicComment         = "comments:received"
	TopicConnectorStatus = "connector:status"
	TopicAIResponse      = "ai:response"
	TopicTTSRequest      = "tts:request"
	TopicTTSSpoken       = "tts:spoken"
	TopicEffectTrigger   = "effects:trigger"
	TopicAppError        = "app:error"

	defaultBufferSize = 128
)

// Bus is a topic-keyed fan-out of buffered channels. Publishes from a single
// goroutine are delivered in order to each subscriber; no ordering is
// guaranteed across publishers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[int]chan any
	nextSubID int

	dropMu     sync.Mutex
	dropCounts map[string]uint64
}

func NewBus() *Bus {
	return &Bus{
		subs:       make(map[string]map[int]chan any),
		dropCounts: make(map[string]uint64),
	}
}

// Publish delivers payload to every subscriber of topic without blocking.
// The read lock is held across the sends; unsubscribe closes channels under
// the write lock, so a send can never hit a closed channel.
func (b *Bus) Publish(topic string, payload any) {
	if topic == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			b.recordDrop(topic)
		}
	}
}

// Subscribe returns a receive channel for topic and an unsubscribe function.
// The channel is closed by the unsubscribe call.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, defaultBufferSize)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan any)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, topic)
				}
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// DropCount reports how many messages were dropped for topic so far.
func (b *Bus) DropCount(topic string) uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropCounts[topic]
}

func (b *Bus) recordDrop(topic string) {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	b.dropCounts[topic]++
	if b.dropCounts[topic]%100 == 1 {
		slog.Warn("events: dropping messages for slow subscriber",
			slog.String("topic", topic),
			slog.Uint64("total_drops", b.dropCounts[topic]))
	}
}
