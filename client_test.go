package codesync

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"pkt.systems/codesync/internal/channel"
	"pkt.systems/codesync/internal/persist"
	"pkt.systems/codesync/internal/roomtest"
	"pkt.systems/codesync/schema"
)

func startRoomServer(t *testing.T, opts roomtest.Options) (*roomtest.Server, *httptest.Server) {
	t.Helper()
	srv := roomtest.New(opts)
	ts := srv.Start()
	t.Cleanup(ts.Close)
	return srv, ts
}

func newTestClient(t *testing.T, baseURL string, id schema.ParticipantID, name schema.DisplayName, transport string) *Client {
	t.Helper()
	c, err := New(Config{
		Session: schema.SessionConfig{
			BaseURL:        baseURL,
			Transport:      transport,
			ReconnectDelay: 20 * time.Millisecond,
			CodeDebounce:   10 * time.Millisecond,
			RequestTimeout: 2 * time.Second,
		},
		ParticipantID: id,
		DisplayName:   name,
	}, Deps{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c
}

func waitSnapshot(t *testing.T, c *Client, what string, ok func(schema.SessionSnapshot) bool) schema.SessionSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := c.Snapshot()
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if ok(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s; last snapshot: status=%q channel=%s in_room=%v", what, snap.Status, snap.Channel, snap.InRoom)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func channelOpen(snap schema.SessionSnapshot) bool { return snap.Channel == schema.ChannelOpen }

func activeContent(snap schema.SessionSnapshot) string {
	for _, f := range snap.Files {
		if f.ID == snap.ActiveFile {
			return f.Content
		}
	}
	return ""
}

func TestCreateRoomJoinsAndOpensChannel(t *testing.T) {
	srv, ts := startRoomServer(t, roomtest.Options{})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	resp, err := alice.CreateRoom(context.Background(), "pairing", "python")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if resp.RoomName != "pairing" || resp.Language != "python" {
		t.Fatalf("unexpected join response: %+v", resp)
	}
	snap := waitSnapshot(t, alice, "channel open", channelOpen)
	if !snap.InRoom || snap.RoomID != resp.RoomID {
		t.Fatalf("expected to be in room %s, got %+v", resp.RoomID, snap)
	}
	if snap.Status != channel.StatusConnected {
		t.Fatalf("unexpected status %q", snap.Status)
	}
	if len(snap.Roster) != 1 || snap.Roster[0].ID != "user_a" {
		t.Fatalf("unexpected roster: %+v", snap.Roster)
	}
	// A fresh room carries the server's empty code; no template is seeded.
	if activeContent(snap) != "" {
		t.Fatalf("unexpected seed content %q", activeContent(snap))
	}
	if len(snap.Files) != 1 || snap.Files[0].Name != "main.py" {
		t.Fatalf("expected a single main.py file, got %+v", snap.Files)
	}
	if !srv.Connected("user_a") {
		t.Fatalf("expected server to see a live stream")
	}
	if _, err := alice.JoinRoom(context.Background(), string(resp.RoomID)); !errors.Is(err, schema.ErrAlreadyInRoom) {
		t.Fatalf("expected already in room, got %v", err)
	}
}

func TestCodeEditReachesPeer(t *testing.T) {
	for _, transport := range []string{schema.TransportSSE, schema.TransportWebSocket} {
		t.Run(transport, func(t *testing.T) {
			srv, ts := startRoomServer(t, roomtest.Options{})
			alice := newTestClient(t, ts.URL, "user_a", "alice", transport)
			bob := newTestClient(t, ts.URL, "user_b", "bob", transport)

			resp, err := alice.CreateRoom(context.Background(), "pairing", "")
			if err != nil {
				t.Fatalf("create room: %v", err)
			}
			waitSnapshot(t, alice, "alice channel open", channelOpen)
			if _, err := bob.JoinRoom(context.Background(), string(resp.RoomID)); err != nil {
				t.Fatalf("join room: %v", err)
			}
			waitSnapshot(t, bob, "bob channel open", channelOpen)
			waitSnapshot(t, alice, "bob on alice roster", func(s schema.SessionSnapshot) bool { return len(s.Roster) == 2 })

			if err := alice.Edit("let x = 1;"); err != nil {
				t.Fatalf("edit: %v", err)
			}
			if err := alice.Edit("let x = 2;"); err != nil {
				t.Fatalf("edit: %v", err)
			}
			snap := waitSnapshot(t, bob, "remote code", func(s schema.SessionSnapshot) bool {
				return activeContent(s) == "let x = 2;"
			})
			if snap.Status != "Code updated by alice" {
				t.Fatalf("unexpected status %q", snap.Status)
			}
			view, _ := srv.Room(resp.RoomID)
			if view.Code != "let x = 2;" {
				t.Fatalf("server code %q", view.Code)
			}
			if n := srv.Count("code"); n != 1 {
				t.Fatalf("expected debounced edits to send once, got %d", n)
			}
		})
	}
}

func TestChannelReconnectsWithoutRejoin(t *testing.T) {
	srv, ts := startRoomServer(t, roomtest.Options{})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	if _, err := alice.CreateRoom(context.Background(), "flaky", ""); err != nil {
		t.Fatalf("create room: %v", err)
	}
	waitSnapshot(t, alice, "channel open", channelOpen)
	if !srv.DropStream("user_a") {
		t.Fatalf("expected a stream to drop")
	}
	waitSnapshot(t, alice, "reconnected", func(s schema.SessionSnapshot) bool {
		return s.Channel == schema.ChannelOpen && srv.Count("sse") >= 2
	})
	if n := srv.Count("join"); n != 1 {
		t.Fatalf("reconnect must not rejoin, join count %d", n)
	}
	snap, _ := alice.Snapshot()
	if !snap.InRoom {
		t.Fatalf("expected room membership to survive reconnect")
	}
}

func TestSendChatRejectsWhileInFlight(t *testing.T) {
	_, ts := startRoomServer(t, roomtest.Options{ChatDelay: 150 * time.Millisecond})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	if err := alice.SendChat("hi"); !errors.Is(err, schema.ErrNotInRoom) {
		t.Fatalf("expected not in room, got %v", err)
	}
	if _, err := alice.CreateRoom(context.Background(), "chat", ""); err != nil {
		t.Fatalf("create room: %v", err)
	}
	waitSnapshot(t, alice, "channel open", channelOpen)

	if err := alice.SendChat("  hello  "); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if err := alice.SendChat("again"); !errors.Is(err, schema.ErrChatInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	snap := waitSnapshot(t, alice, "chat delivered", func(s schema.SessionSnapshot) bool {
		return len(s.Chat) == 1 && !s.SendingChat
	})
	if snap.Chat[0].Message != "hello" || snap.Chat[0].UserID != "user_a" {
		t.Fatalf("unexpected chat: %+v", snap.Chat[0])
	}
	if err := alice.SendChat("   "); !errors.Is(err, schema.ErrEmptyMessage) {
		t.Fatalf("expected empty message error, got %v", err)
	}
}

func TestJoinFailureStatuses(t *testing.T) {
	_, ts := startRoomServer(t, roomtest.Options{})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	if _, err := alice.JoinRoom(context.Background(), "missing"); err == nil {
		t.Fatalf("expected join error")
	}
	snap, _ := alice.Snapshot()
	if snap.Status != "Error: Room not found" || snap.InRoom {
		t.Fatalf("unexpected state after failed join: status=%q in_room=%v", snap.Status, snap.InRoom)
	}

	if _, err := alice.JoinRoom(context.Background(), "   "); !errors.Is(err, schema.ErrRoomIDRequired) {
		t.Fatalf("expected room id required, got %v", err)
	}
	snap, _ = alice.Snapshot()
	if snap.Status != StatusRoomIDMissing {
		t.Fatalf("unexpected status %q", snap.Status)
	}
	if _, err := alice.CreateRoom(context.Background(), "", ""); !errors.Is(err, schema.ErrRoomNameRequired) {
		t.Fatalf("expected room name required, got %v", err)
	}

	offline := httptest.NewServer(nil)
	offline.Close()
	bob := newTestClient(t, offline.URL, "user_b", "bob", schema.TransportSSE)
	if _, err := bob.JoinRoom(context.Background(), "room"); err == nil {
		t.Fatalf("expected network error")
	}
	snap, _ = bob.Snapshot()
	if snap.Status != StatusJoinOffline {
		t.Fatalf("unexpected offline status %q", snap.Status)
	}
}

func TestJoinRequiresDisplayName(t *testing.T) {
	srv, ts := startRoomServer(t, roomtest.Options{})
	anon := newTestClient(t, ts.URL, "user_x", "", schema.TransportSSE)
	if _, err := anon.JoinRoom(context.Background(), "room"); !errors.Is(err, schema.ErrDisplayNameRequired) {
		t.Fatalf("expected display name required, got %v", err)
	}
	if srv.Count("join") != 0 {
		t.Fatalf("join must not reach the server")
	}
	if err := anon.SetDisplayName("ab"); !errors.Is(err, schema.ErrDisplayNameTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
}

func TestLeaveAndDeleteResetSession(t *testing.T) {
	srv, ts := startRoomServer(t, roomtest.Options{})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	resp, err := alice.CreateRoom(context.Background(), "one", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	waitSnapshot(t, alice, "channel open", channelOpen)
	if err := alice.LeaveRoom(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap := waitSnapshot(t, alice, "left", func(s schema.SessionSnapshot) bool {
		return !s.InRoom && s.Channel == schema.ChannelClosed
	})
	if activeContent(snap) != schema.WelcomeCode {
		t.Fatalf("expected welcome file after leave")
	}
	if srv.Count("leave") != 1 {
		t.Fatalf("expected one leave announcement")
	}
	if err := alice.LeaveRoom(context.Background()); !errors.Is(err, schema.ErrNotInRoom) {
		t.Fatalf("expected not in room, got %v", err)
	}

	if _, err := alice.JoinRoom(context.Background(), string(resp.RoomID)); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	waitSnapshot(t, alice, "channel open", channelOpen)
	if err := alice.SaveRoom(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if snap, _ := alice.Snapshot(); snap.Status != StatusSaved {
		t.Fatalf("unexpected save status %q", snap.Status)
	}
	if err := alice.DeleteRoom(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap, _ = alice.Snapshot()
	if snap.InRoom || snap.Status != StatusDeleted {
		t.Fatalf("unexpected state after delete: status=%q in_room=%v", snap.Status, snap.InRoom)
	}
	if _, ok := srv.Room(resp.RoomID); ok {
		t.Fatalf("room still exists on server")
	}
}

func TestLocalFilesAndReactions(t *testing.T) {
	_, ts := startRoomServer(t, roomtest.Options{})
	alice := newTestClient(t, ts.URL, "user_a", "alice", schema.TransportSSE)

	file, err := alice.OpenFile()
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if err := alice.ChangeLanguage("python"); err != nil {
		t.Fatalf("change language: %v", err)
	}
	snap, _ := alice.Snapshot()
	if snap.ActiveFile != file.ID || activeContent(snap) != schema.DefaultCode("python") {
		t.Fatalf("unexpected active file after language change: %+v", snap.Files)
	}
	if ok, err := alice.CloseFile(file.ID); err != nil || !ok {
		t.Fatalf("close file: ok=%v err=%v", ok, err)
	}
	snap, _ = alice.Snapshot()
	if ok, err := alice.CloseFile(snap.ActiveFile); err != nil || ok {
		t.Fatalf("closing the last file must be a no-op: ok=%v err=%v", ok, err)
	}
	if err := alice.SwitchFile("nope"); !errors.Is(err, schema.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
	if _, err := alice.ToggleReaction("m1", "shrug"); !errors.Is(err, schema.ErrInvalidReaction) {
		t.Fatalf("expected invalid reaction, got %v", err)
	}
	present, err := alice.ToggleReaction("m1", "heart")
	if err != nil || !present {
		t.Fatalf("toggle on: present=%v err=%v", present, err)
	}
	present, _ = alice.ToggleReaction("m1", "heart")
	if present {
		t.Fatalf("expected second toggle to remove the reaction")
	}
}

func TestNewPersistsGeneratedIdentity(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.NewFileStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first, err := New(Config{Session: schema.SessionConfig{BaseURL: "http://127.0.0.1:1"}}, Deps{Prefs: store})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if first.Self() == "" {
		t.Fatalf("expected a generated participant id")
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := first.SetDisplayName("alice"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := first.SetTheme("light"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := first.SetTheme("neon"); !errors.Is(err, schema.ErrInvalidTheme) {
		t.Fatalf("expected invalid theme, got %v", err)
	}
	_ = first.Stop(context.Background())

	second, err := New(Config{Session: schema.SessionConfig{BaseURL: "http://127.0.0.1:1"}}, Deps{Prefs: store})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if second.Self() != first.Self() {
		t.Fatalf("expected persisted id %s, got %s", first.Self(), second.Self())
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer second.Stop(context.Background())
	snap, _ := second.Snapshot()
	if snap.SelfName != "alice" || snap.Theme != "light" {
		t.Fatalf("unexpected restored prefs: name=%q theme=%q", snap.SelfName, snap.Theme)
	}
}

func TestCallsBeforeStartFail(t *testing.T) {
	c, err := New(Config{Session: schema.SessionConfig{BaseURL: "http://127.0.0.1:1"}, ParticipantID: "user_a"}, Deps{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}
