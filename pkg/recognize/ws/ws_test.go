package ws

import (
	"strings"
	"testing"
	"time"
)

// ── buildURL ──────────────────────────────────────────────────────────────────

func TestBuildURL_AddsLanguageAndInterim(t *testing.T) {
	r, err := New("wss://gateway.example.com/listen")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := r.buildURL("en")
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	if !strings.Contains(got, "language=en") {
		t.Errorf("URL missing language parameter: %s", got)
	}
	if !strings.Contains(got, "interim_results=true") {
		t.Errorf("URL missing interim_results parameter: %s", got)
	}
}

func TestBuildURL_InterimDisabled(t *testing.T) {
	r, err := New("wss://gateway.example.com/listen", WithInterimResults(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := r.buildURL("en")
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	if strings.Contains(got, "interim_results") {
		t.Errorf("URL should not contain interim_results: %s", got)
	}
}

func TestBuildURL_TokenNotInURL(t *testing.T) {
	r, err := New("wss://gateway.example.com/listen", WithToken("secret-token"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := r.buildURL("en")
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	if strings.Contains(got, "secret-token") {
		t.Errorf("token leaked into URL: %s", got)
	}
}

func TestNew_EmptyEndpoint(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty endpoint, got nil")
	}
}

// ── parseEvent ────────────────────────────────────────────────────────────────

func TestParseEvent_Result(t *testing.T) {
	msg := []byte(`{"type":"result","text":"hello world","is_final":true,"start":1.5,"end":2.25,"speaker_id":"spk-1"}`)

	ev, ok := parseEvent(msg)
	if !ok {
		t.Fatal("parseEvent() ok = false, want true")
	}
	if ev.Text != "hello world" {
		t.Errorf("Text = %q, want %q", ev.Text, "hello world")
	}
	if !ev.IsFinal {
		t.Error("IsFinal = false, want true")
	}
	if ev.Start != 1500*time.Millisecond {
		t.Errorf("Start = %v, want 1.5s", ev.Start)
	}
	if ev.End != 2250*time.Millisecond {
		t.Errorf("End = %v, want 2.25s", ev.End)
	}
	if ev.SpeakerID != "spk-1" {
		t.Errorf("SpeakerID = %q, want %q", ev.SpeakerID, "spk-1")
	}
}

func TestParseEvent_IgnoresNonResults(t *testing.T) {
	for _, msg := range []string{
		`{"type":"metadata","request_id":"abc"}`,
		`{"type":"keepalive"}`,
		`not json at all`,
	} {
		if _, ok := parseEvent([]byte(msg)); ok {
			t.Errorf("parseEvent(%q) ok = true, want false", msg)
		}
	}
}
