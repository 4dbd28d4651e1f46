package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pkt.systems/codesync/internal/eventbus"
	"pkt.systems/codesync/internal/sessionprefs"
	"pkt.systems/codesync/schema"
)

func printEvents(ctx context.Context, out io.Writer, self schema.ParticipantID, events <-chan eventbus.Event, prefs *sessionprefs.Prefs) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if line, ok := formatEvent(ev, self, prefs); ok {
				_, _ = fmt.Fprintln(out, line)
			}
		}
	}
}

// formatEvent renders an event as terminal output. Events the terminal has
// no use for report false.
func formatEvent(ev eventbus.Event, self schema.ParticipantID, prefs *sessionprefs.Prefs) (string, bool) {
	switch ev.Type {
	case eventbus.EventStatus:
		if strings.TrimSpace(ev.Status.Text) == "" {
			return "", false
		}
		return "* " + ev.Status.Text, true
	case eventbus.EventChat:
		msg := ev.Chat.Message
		return fmt.Sprintf("[%s] %s: %s", shortTime(msg.Timestamp), schema.SenderLabel(msg.UserName, msg.UserID), msg.Message), true
	case eventbus.EventBuffer:
		if !ev.Buffer.Remote {
			return "", false
		}
		if prefs != nil && prefs.FullCode.Load() {
			return fmt.Sprintf("--- %s ---\n%s\n---", ev.Buffer.FileID, ev.Buffer.Content), true
		}
		return fmt.Sprintf("~ %s now %d lines", ev.Buffer.FileID, strings.Count(ev.Buffer.Content, "\n")+1), true
	case eventbus.EventRoster:
		if len(ev.Roster.Users) == 0 {
			return "", false
		}
		names := make([]string, 0, len(ev.Roster.Users))
		for _, u := range ev.Roster.Users {
			names = append(names, schema.SenderLabel(u.Name, u.ID))
		}
		return "users: " + strings.Join(names, ", "), true
	case eventbus.EventCursor:
		if prefs == nil || !prefs.ShowCursors.Load() || ev.Cursor.Owner == self {
			return "", false
		}
		return fmt.Sprintf("> %s at %d:%d", ev.Cursor.Owner, ev.Cursor.Position.Line+1, ev.Cursor.Position.Column+1), true
	case eventbus.EventRoom:
		if ev.Room.InRoom {
			return fmt.Sprintf("room: %s (%s)", ev.Room.RoomName, ev.Room.RoomID), true
		}
		return "room: none", true
	default:
		return "", false
	}
}

// shortTime trims a server timestamp to HH:MM:SS.
func shortTime(ts string) string {
	if len(ts) >= 19 && ts[10] == 'T' {
		return ts[11:19]
	}
	return ts
}
