package codesync

import (
	"pkt.systems/codesync/core"
	"pkt.systems/codesync/schema"
)

// eventFanout forwards state notifications to every non-nil sink in order.
type eventFanout struct {
	sinks []core.EventSink
}

func newEventFanout(sinks ...core.EventSink) core.EventSink {
	out := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return eventFanout{sinks: out}
}

func (f eventFanout) each(fn func(core.EventSink)) {
	for _, sink := range f.sinks {
		fn(sink)
	}
}

func (f eventFanout) OnStatus(event schema.StatusEvent) {
	f.each(func(s core.EventSink) { s.OnStatus(event) })
}

func (f eventFanout) OnBuffer(event schema.BufferEvent) {
	f.each(func(s core.EventSink) { s.OnBuffer(event) })
}

func (f eventFanout) OnRoster(event schema.RosterEvent) {
	f.each(func(s core.EventSink) { s.OnRoster(event) })
}

func (f eventFanout) OnCursor(event schema.CursorEvent) {
	f.each(func(s core.EventSink) { s.OnCursor(event) })
}

func (f eventFanout) OnChat(event schema.ChatEvent) {
	f.each(func(s core.EventSink) { s.OnChat(event) })
}

func (f eventFanout) OnFiles(event schema.FilesEvent) {
	f.each(func(s core.EventSink) { s.OnFiles(event) })
}

func (f eventFanout) OnChannel(event schema.ChannelEvent) {
	f.each(func(s core.EventSink) { s.OnChannel(event) })
}

func (f eventFanout) OnRoom(event schema.RoomEvent) {
	f.each(func(s core.EventSink) { s.OnRoom(event) })
}
