package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventStatus carries a status line.
	EventStatus EventType = "status"
	// EventBuffer asks the editor to replace its buffer.
	EventBuffer EventType = "buffer"
	// EventRoster carries a replaced roster.
	EventRoster EventType = "roster"
	// EventCursor carries a cursor move.
	EventCursor EventType = "cursor"
	// EventChat carries an appended chat message.
	EventChat EventType = "chat"
	// EventFiles carries file set changes.
	EventFiles EventType = "files"
	// EventChannel carries push channel state changes.
	EventChannel EventType = "channel"
	// EventRoom carries room enter/leave.
	EventRoom EventType = "room"
)

// Event represents a UI-facing event emitted by the session state.
type Event struct {
	Type    EventType
	Status  schema.StatusEvent
	Buffer  schema.BufferEvent
	Roster  schema.RosterEvent
	Cursor  schema.CursorEvent
	Chat    schema.ChatEvent
	Files   schema.FilesEvent
	Channel schema.ChannelEvent
	Room    schema.RoomEvent
}

// Bus fanouts events to per-participant subscribers.
type Bus struct {
	mu      sync.Mutex
	subs    map[schema.ParticipantID]map[chan Event]struct{}
	log     pslog.Logger
	depth   int
	dropped atomic.Uint64
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ParticipantID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the participant and returns a channel + cancel.
func (b *Bus) Subscribe(id schema.ParticipantID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	userSubs := b.subs[id]
	if userSubs == nil {
		userSubs = make(map[chan Event]struct{})
		b.subs[id] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	b.log.With("participant", id).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[id]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, id)
				}
			}
			close(ch)
			b.mu.Unlock()
			b.log.With("participant", id).Debug("eventbus unsubscribe")
		})
	}
}

// Dropped returns the number of events dropped on full subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// OnStatus publishes a status event.
func (b *Bus) OnStatus(event schema.StatusEvent) {
	b.publish(event.UserID, Event{Type: EventStatus, Status: event})
}

// OnBuffer publishes a buffer replacement event.
func (b *Bus) OnBuffer(event schema.BufferEvent) {
	b.publish(event.UserID, Event{Type: EventBuffer, Buffer: event})
}

// OnRoster publishes a roster event.
func (b *Bus) OnRoster(event schema.RosterEvent) {
	b.publish(event.UserID, Event{Type: EventRoster, Roster: event})
}

// OnCursor publishes a cursor event.
func (b *Bus) OnCursor(event schema.CursorEvent) {
	b.publish(event.UserID, Event{Type: EventCursor, Cursor: event})
}

// OnChat publishes a chat event.
func (b *Bus) OnChat(event schema.ChatEvent) {
	b.publish(event.UserID, Event{Type: EventChat, Chat: event})
}

// OnFiles publishes a file set event.
func (b *Bus) OnFiles(event schema.FilesEvent) {
	b.publish(event.UserID, Event{Type: EventFiles, Files: event})
}

// OnChannel publishes a channel state event.
func (b *Bus) OnChannel(event schema.ChannelEvent) {
	b.publish(event.UserID, Event{Type: EventChannel, Channel: event})
}

// OnRoom publishes a room event.
func (b *Bus) OnRoom(event schema.RoomEvent) {
	b.publish(event.UserID, Event{Type: EventRoom, Room: event})
}

func (b *Bus) publish(id schema.ParticipantID, event Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for sub := range b.subs[id] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.dropped.Add(uint64(dropped))
		b.log.With("participant", id).Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
