package stream

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	events := []Event{
		Start("01ARZ3NDEKTSV4RRFFQ69G5FAV", true),
		Content("a fragment"),
		Done(42, now),
		Error("boom"),
	}
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal %s: %v", ev.Type, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Type, err)
		}
		if got.Type != ev.Type {
			t.Fatalf("type changed: %s -> %s", ev.Type, got.Type)
		}
	}
}

func TestDecodeFields(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"start","sessionId":"abc","isNewSession":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.SessionID != "abc" || ev.IsNewSession == nil || *ev.IsNewSession {
		t.Fatalf("start fields wrong: %+v", ev)
	}

	ev, err = Decode([]byte(`{"type":"done","messageId":7}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.MessageID != 7 {
		t.Fatalf("done fields wrong: %+v", ev)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"progress"}`)); err == nil {
		t.Fatalf("unknown discriminator must be rejected")
	}
	if _, err := Decode([]byte(`{}`)); err == nil {
		t.Fatalf("missing discriminator must be rejected")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("malformed json must be rejected")
	}
}
