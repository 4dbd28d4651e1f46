package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/codesync/internal/eventbus"
	"pkt.systems/codesync/internal/roomtest"
	"pkt.systems/codesync/internal/sessionprefs"
	"pkt.systems/codesync/schema"
)

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"create": false, "join": false, "name": false, "theme": false, "init": false, "devserver": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionCommandJSON(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), `"module": "pkt.systems/codesync"`) {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestFormatEvent(t *testing.T) {
	prefs := sessionprefs.New()
	tests := []struct {
		name string
		ev   eventbus.Event
		want string
		ok   bool
	}{
		{name: "status", ev: eventbus.Event{Type: eventbus.EventStatus, Status: schema.StatusEvent{Text: "Connected to real-time server"}}, want: "* Connected to real-time server", ok: true},
		{name: "empty-status", ev: eventbus.Event{Type: eventbus.EventStatus}, ok: false},
		{name: "chat", ev: eventbus.Event{Type: eventbus.EventChat, Chat: schema.ChatEvent{Message: schema.ChatMessage{UserID: "user_b", Message: "hi", Timestamp: "2026-01-02T10:11:12.000000"}}}, want: "[10:11:12] user_b: hi", ok: true},
		{name: "local-buffer", ev: eventbus.Event{Type: eventbus.EventBuffer, Buffer: schema.BufferEvent{FileID: "main", Content: "a"}}, ok: false},
		{name: "remote-buffer", ev: eventbus.Event{Type: eventbus.EventBuffer, Buffer: schema.BufferEvent{FileID: "main", Content: "a\nb", Remote: true}}, want: "~ main now 2 lines", ok: true},
		{name: "roster", ev: eventbus.Event{Type: eventbus.EventRoster, Roster: schema.RosterEvent{Users: []schema.Participant{{ID: "user_a", Name: "alice"}, {ID: "user_b"}}}}, want: "users: alice, user_b", ok: true},
		{name: "cursor-hidden", ev: eventbus.Event{Type: eventbus.EventCursor, Cursor: schema.CursorEvent{Owner: "user_b"}}, ok: false},
		{name: "left", ev: eventbus.Event{Type: eventbus.EventRoom}, want: "room: none", ok: true},
		{name: "channel", ev: eventbus.Event{Type: eventbus.EventChannel}, ok: false},
	}
	for _, tc := range tests {
		got, ok := formatEvent(tc.ev, "user_a", prefs)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: formatEvent = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}

	prefs.ShowCursors.Store(true)
	got, ok := formatEvent(eventbus.Event{Type: eventbus.EventCursor, Cursor: schema.CursorEvent{Owner: "user_b", Position: schema.Position{Line: 1, Column: 2}}}, "user_a", prefs)
	if !ok || got != "> user_b at 2:3" {
		t.Fatalf("unexpected cursor line (%q, %v)", got, ok)
	}
	if _, ok := formatEvent(eventbus.Event{Type: eventbus.EventCursor, Cursor: schema.CursorEvent{Owner: "user_a"}}, "user_a", prefs); ok {
		t.Fatalf("own cursor must not be printed")
	}
	prefs.FullCode.Store(true)
	got, _ = formatEvent(eventbus.Event{Type: eventbus.EventBuffer, Buffer: schema.BufferEvent{FileID: "main", Content: "x", Remote: true}}, "user_a", prefs)
	if got != "--- main ---\nx\n---" {
		t.Fatalf("unexpected full code output %q", got)
	}
}

func TestNameAndThemeCommandsPersist(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://127.0.0.1:1", "bolt")

	out := runRoot(t, nil, "--config", cfgPath, "name", "alice")
	if out != "name: alice\n" {
		t.Fatalf("unexpected name output %q", out)
	}
	out = runRoot(t, nil, "--config", cfgPath, "theme", "maroon")
	if out != "theme: redMaroon\n" {
		t.Fatalf("unexpected theme output %q", out)
	}
	out = runRoot(t, nil, "--config", cfgPath, "name")
	if out != "name: alice\n" {
		t.Fatalf("expected persisted name, got %q", out)
	}

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "name", "a!"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestCreateSessionSendsChatLines(t *testing.T) {
	srv := roomtest.New(roomtest.Options{})
	ts := srv.Start()
	defer ts.Close()
	cfgPath := writeTestConfig(t, ts.URL, "file")

	in, feed := io.Pipe()
	done := make(chan string, 1)
	go func() {
		done <- runRoot(t, in, "--config", cfgPath, "create", "demo", "--name", "alice", "--lang", "python")
	}()

	waitFor(t, "stream", func() bool { return srv.Count("sse") >= 1 })
	if _, err := io.WriteString(feed, "hello from the terminal\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "chat", func() bool { return srv.Count("chat") == 1 })
	if _, err := io.WriteString(feed, "/quit\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out string
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not exit")
	}
	_ = feed.Close()
	if !strings.Contains(out, "room demo created") {
		t.Fatalf("expected create output, got %q", out)
	}
	if srv.Count("leave") != 1 {
		t.Fatalf("expected the session to leave the room on exit")
	}
}

func runRoot(t *testing.T, in io.Reader, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	if in != nil {
		root.SetIn(in)
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Errorf("%v: %v", args, err)
	}
	return out.String()
}

func writeTestConfig(t *testing.T, baseURL, backend string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "config_version: 1\n" +
		"state_dir: " + filepath.Join(dir, "state") + "\n" +
		"server:\n  base_url: " + baseURL + "\n" +
		"channel:\n  reconnect_delay_ms: 50\n" +
		"dispatch:\n  code_debounce_ms: 10\n" +
		"prefs:\n  backend: " + backend + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func waitFor(t *testing.T, what string, ok func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !ok() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
