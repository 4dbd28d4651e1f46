package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeDisplayName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		err  error
	}{
		{"simple", "alice", nil},
		{"underscore-digits", "ab_12", nil},
		{"min", "abc", nil},
		{"max", "abcdefghijklmno", nil},
		{"trimmed", "  bob_1  ", nil},
		{"empty", "", ErrDisplayNameRequired},
		{"blank", "   ", ErrDisplayNameRequired},
		{"short", "ab", ErrDisplayNameTooShort},
		{"long", "abcdefghijklmnop", ErrDisplayNameTooLong},
		{"space", "al ice", ErrDisplayNameCharset},
		{"dash", "al-ice", ErrDisplayNameCharset},
		{"unicode", "Ã¥lice", ErrDisplayNameCharset},
	}

	for _, tc := range cases {
		_, err := NormalizeDisplayName(tc.in)
		if tc.err == nil && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Fatalf("case %q expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestNormalizeChatBody(t *testing.T) {
	body, err := NormalizeChatBody("  hi  ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if body != "hi" {
		t.Fatalf("expected trimmed body, got %q", body)
	}
	if _, err := NormalizeChatBody(" \t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected empty error, got %v", err)
	}
	if _, err := NormalizeChatBody(strings.Repeat("x", ChatMessageMax)); err != nil {
		t.Fatalf("expected max length to pass, got %v", err)
	}
	if _, err := NormalizeChatBody(strings.Repeat("x", ChatMessageMax+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected too long error, got %v", err)
	}
}

func TestNormalizeReactionKind(t *testing.T) {
	for _, kind := range ReactionKinds() {
		if _, err := NormalizeReactionKind(string(kind)); err != nil {
			t.Fatalf("expected %q to be valid: %v", kind, err)
		}
	}
	if got, err := NormalizeReactionKind(" HEART "); err != nil || got != "heart" {
		t.Fatalf("expected heart, got %q (%v)", got, err)
	}
	if _, err := NormalizeReactionKind("rocket"); !errors.Is(err, ErrInvalidReaction) {
		t.Fatalf("expected invalid reaction, got %v", err)
	}
}

func TestLanguageHelpers(t *testing.T) {
	cases := []struct {
		lang Language
		ext  string
	}{
		{"javascript", "js"},
		{"python", "py"},
		{"cpp", "cpp"},
		{"typescript", "ts"},
		{"html", "html"},
		{"css", "css"},
		{"cobol", "txt"},
	}
	for _, tc := range cases {
		if got := FileExtension(tc.lang); got != tc.ext {
			t.Fatalf("FileExtension(%q) = %q, want %q", tc.lang, got, tc.ext)
		}
	}
	if got := RenameForLanguage("main.js", "python"); got != "main.py" {
		t.Fatalf("expected main.py, got %q", got)
	}
	if got := RenameForLanguage("notes", "css"); got != "notes.css" {
		t.Fatalf("expected notes.css, got %q", got)
	}
	if lang, err := NormalizeLanguage("PY"); err != nil || lang != "python" {
		t.Fatalf("expected python alias, got %q (%v)", lang, err)
	}
	if _, err := NormalizeLanguage("cobol"); !errors.Is(err, ErrInvalidLanguage) {
		t.Fatalf("expected invalid language, got %v", err)
	}
	if !strings.Contains(DefaultCode("python"), "print(") {
		t.Fatalf("expected python template")
	}
}

func TestNormalizeSessionConfigDefaults(t *testing.T) {
	cfg, err := NormalizeSessionConfig(SessionConfig{BaseURL: "http://localhost:8001/"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8001" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.APIPrefix != DefaultAPIPrefix || cfg.Transport != TransportSSE {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReconnectDelay != DefaultReconnectDelay || cfg.CodeDebounce != DefaultCodeDebounce {
		t.Fatalf("unexpected timings: %+v", cfg)
	}
	if _, err := NormalizeSessionConfig(SessionConfig{}); err == nil {
		t.Fatalf("expected missing base url error")
	}
	if _, err := NormalizeSessionConfig(SessionConfig{BaseURL: "http://x", Transport: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(FrameCursorUpdated, CursorUpdatedPayload{UserID: "u1", Position: Position{Line: 2, Column: 3}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Type != FrameCursorUpdated || len(frame.Data) == 0 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if _, err := DecodeFrame([]byte("{nope")); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed frame, got %v", err)
	}
	if _, err := DecodeFrame([]byte(`{"data":{}}`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected missing type to be malformed, got %v", err)
	}
}
