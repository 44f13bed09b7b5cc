package logbus

import (
	"slices"
	"sync"
	"time"
)

// Message types published on the bus.
const (
	TypeLog                      = "log"
	TypeCardFarmingState         = "card_farming_state"
	TypeAchievementUnlockerState = "achievement_unlocker_state"
	TypeEngineState              = "engine_state"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink receives every log message after it is published. Persist must not
// call back into the bus.
type Sink interface {
	Persist(at time.Time, data LogData)
}

// Bus fans messages out to subscribers and keeps the most recent ones in a
// fixed-size ring for replay to late joiners.
type Bus struct {
	mu     sync.RWMutex
	ring   []Message
	head   int // index of the oldest message once the ring is full
	subs   map[*subscription]struct{}
	sink   Sink
	closed bool
}

type subscription struct {
	ch    chan Message
	types []string
}

func (s *subscription) wants(typ string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, typ)
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		ring: make([]Message, 0, capacity),
		subs: make(map[*subscription]struct{}),
	}
}

func (b *Bus) SetSink(s Sink) {
	b.mu.Lock()
	b.sink = s
	b.mu.Unlock()
}

// Close ends every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.ring = nil
	b.head = 0
	b.sink = nil
}

// Snapshot returns the buffered messages oldest first, optionally limited to the given types.
func (b *Bus) Snapshot(types ...string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	filter := subscription{types: types}
	out := make([]Message, 0, len(b.ring))
	for i := range b.ring {
		msg := b.ring[(b.head+i)%len(b.ring)]
		if filter.wants(msg.Type) {
			out = append(out, msg)
		}
	}
	return out
}

// Subscribe registers a buffered receiver. Slow receivers miss messages
// rather than block publishers. With types set only those are delivered.
func (b *Bus) Subscribe(buffer int, types ...string) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{ch: make(chan Message, buffer), types: types}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	b.publish(Message{Type: typ, Time: time.Now().UnixMilli(), Data: data})
}

func (b *Bus) publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.ring) < cap(b.ring) {
		b.ring = append(b.ring, msg)
	} else {
		b.ring[b.head] = msg
		b.head = (b.head + 1) % len(b.ring)
	}
	for sub := range b.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// Log publishes a log line and hands it to the sink, if one is set.
func (b *Bus) Log(level, message string, fields map[string]any) {
	now := time.Now()
	data := LogData{Level: level, Msg: message, Fields: fields}
	b.publish(Message{Type: TypeLog, Time: now.UnixMilli(), Data: data})

	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink != nil {
		sink.Persist(now, data)
	}
}
