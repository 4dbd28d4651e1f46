package core

import "pkt.systems/codesync/schema"

// EventSink receives UI notifications from session state transitions.
type EventSink interface {
	OnStatus(event schema.StatusEvent)
	OnBuffer(event schema.BufferEvent)
	OnRoster(event schema.RosterEvent)
	OnCursor(event schema.CursorEvent)
	OnChat(event schema.ChatEvent)
	OnFiles(event schema.FilesEvent)
	OnChannel(event schema.ChannelEvent)
	OnRoom(event schema.RoomEvent)
}

type nopSink struct{}

func (nopSink) OnStatus(schema.StatusEvent)   {}
func (nopSink) OnBuffer(schema.BufferEvent)   {}
func (nopSink) OnRoster(schema.RosterEvent)   {}
func (nopSink) OnCursor(schema.CursorEvent)   {}
func (nopSink) OnChat(schema.ChatEvent)       {}
func (nopSink) OnFiles(schema.FilesEvent)     {}
func (nopSink) OnChannel(schema.ChannelEvent) {}
func (nopSink) OnRoom(schema.RoomEvent)       {}
