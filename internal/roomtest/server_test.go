package roomtest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"pkt.systems/codesync/schema"
)

func postJSON(t *testing.T, url string, body any, out any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post %s: status %d", url, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestJoinReturnsRosterAndBroadcastsToOthers(t *testing.T) {
	srv := New(Options{})
	ts := srv.Start()
	defer ts.Close()
	api := ts.URL + "/api"

	var created schema.CreateRoomResponse
	postJSON(t, api+"/rooms", schema.CreateRoomRequest{Name: "pairing", Language: "python"}, &created)
	if created.ID == "" || created.Language != "python" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	var first schema.JoinRoomResponse
	postJSON(t, api+"/rooms/join", schema.JoinRoomRequest{RoomID: created.ID, UserID: "user_b", UserName: "bob"}, &first)
	if len(first.Users) != 1 || first.Users[0].UserID != "user_b" {
		t.Fatalf("unexpected roster: %+v", first.Users)
	}

	resp, err := http.Get(api + "/sse/user_b")
	if err != nil {
		t.Fatalf("open sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}
	deadline := time.Now().Add(time.Second)
	for !srv.Connected("user_b") {
		if time.Now().After(deadline) {
			t.Fatalf("stream never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var second schema.JoinRoomResponse
	postJSON(t, api+"/rooms/join", schema.JoinRoomRequest{RoomID: created.ID, UserID: "user_c", UserName: "carol"}, &second)
	if len(second.Users) != 2 {
		t.Fatalf("expected two users, got %+v", second.Users)
	}

	lines := make(chan string, 8)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	select {
	case line := <-lines:
		frame, err := schema.DecodeFrame([]byte(line))
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type != schema.FrameUserJoined {
			t.Fatalf("expected user_joined, got %s", frame.Type)
		}
		var payload schema.RosterPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.UserID != "user_c" || len(payload.Users) != 2 {
			t.Fatalf("unexpected payload: %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for user_joined frame")
	}
}

func TestUnknownRoomAnswersWithErrorBody(t *testing.T) {
	srv := New(Options{})
	ts := srv.Start()
	defer ts.Close()

	var join schema.JoinRoomResponse
	postJSON(t, ts.URL+"/api/rooms/join", schema.JoinRoomRequest{RoomID: "nope", UserID: "user_a", UserName: "alice"}, &join)
	if join.Error != "Room not found" {
		t.Fatalf("expected room not found, got %+v", join)
	}
	var chat schema.SendChatResponse
	postJSON(t, ts.URL+"/api/send-chat-message", schema.SendChatRequest{RoomID: "nope", UserID: "user_a", Message: "  "}, &chat)
	if chat.Error != "Message cannot be empty" {
		t.Fatalf("expected empty message error, got %+v", chat)
	}
}

func TestChatHistoryIsCapped(t *testing.T) {
	srv := New(Options{})
	ts := srv.Start()
	defer ts.Close()
	api := ts.URL + "/api"

	var created schema.CreateRoomResponse
	postJSON(t, api+"/rooms", schema.CreateRoomRequest{Name: "chatty"}, &created)
	for i := 0; i < chatHistoryLimit+5; i++ {
		postJSON(t, api+"/send-chat-message", schema.SendChatRequest{RoomID: created.ID, UserID: "user_a", UserName: "alice", Message: "hi"}, nil)
	}
	view, ok := srv.Room(created.ID)
	if !ok {
		t.Fatalf("room missing")
	}
	if len(view.Chat) != chatHistoryLimit {
		t.Fatalf("expected %d messages, got %d", chatHistoryLimit, len(view.Chat))
	}
	if srv.Count("chat") != chatHistoryLimit+5 {
		t.Fatalf("unexpected chat count %d", srv.Count("chat"))
	}
}
