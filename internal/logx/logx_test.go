package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

func TestWithFileAddsField(t *testing.T) {
	capture := &logCapture{}
	logger := newTestLogger(capture)
	log := WithFile(logger, "main")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["file"] != "main" {
		t.Fatalf("expected file field, got %+v", entry)
	}
}

func TestWithFrameSkipsEmptyFields(t *testing.T) {
	capture := &logCapture{}
	logger := newTestLogger(capture)
	log := WithFrame(logger, "ping", 0)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["frame"] != "ping" {
		t.Fatalf("expected frame field, got %+v", entry)
	}
	if _, ok := entry["bytes"]; ok {
		t.Fatalf("did not expect bytes for empty frame")
	}
}

func TestWithParticipantRoomAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newTestLogger(capture))
	log := WithParticipantRoom(ctx, "user_1", "R1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["participant"] != "user_1" {
		t.Fatalf("expected participant field, got %+v", entry)
	}
	if entry["room"] != "R1" {
		t.Fatalf("expected room field, got %+v", entry)
	}
}

func TestContextMarkersDeduplicate(t *testing.T) {
	capture := &logCapture{}
	base := newTestLogger(capture).With("participant", "user_1")
	ctx := ContextWithParticipantLogger(context.Background(), base, "user_1")
	WithParticipant(ctx, "user_1").Info("hello")

	line := capture.buf.String()
	if n := bytes.Count([]byte(line), []byte(`"participant"`)); n != 1 {
		t.Fatalf("expected participant once, got %d in %s", n, line)
	}

	copied := CopyContextFields(context.Background(), ContextWithRoom(ctx, "R1"))
	if got, _ := copied.Value(roomKey).(schema.RoomID); got != "R1" {
		t.Fatalf("expected room marker to be copied, got %q", got)
	}
	if got, _ := copied.Value(participantKey).(schema.ParticipantID); got != "user_1" {
		t.Fatalf("expected participant marker to be copied, got %q", got)
	}
}

func newTestLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
