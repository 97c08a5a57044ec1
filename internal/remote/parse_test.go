package remote

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pmendes/parley/internal/model"
	"go.uber.org/zap"
)

func TestParseDocText(t *testing.T) {
	m := parseDoc(doc{
		ID:        "m1",
		Text:      "hi",
		CreatedAt: "2026-08-01T12:00:00Z",
		Author:    model.Author{ID: "u1", DisplayName: "Rita"},
	})
	if m.ID != "m1" || m.Text != "hi" {
		t.Errorf("parsed = %+v", m)
	}
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, want)
	}
	if m.Author.DisplayName != "Rita" {
		t.Errorf("Author = %+v", m.Author)
	}
}

func TestParseDocMissingCreatedAtFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	m := parseDoc(doc{ID: "m1", Text: "hi"})
	after := time.Now().UTC()

	if m.CreatedAt.Before(before) || m.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want within [%v, %v]", m.CreatedAt, before, after)
	}
}

func TestParseDocBadCreatedAtFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	m := parseDoc(doc{ID: "m1", CreatedAt: "not-a-time"})
	if m.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want >= %v", m.CreatedAt, before)
	}
}

func TestDecodeSnapshotSortsAndSkipsMalformed(t *testing.T) {
	f := frame{
		Type: frameSnapshot,
		Docs: []json.RawMessage{
			json.RawMessage(`{"id":"old","text":"first","created_at":"2026-08-01T10:00:00Z"}`),
			json.RawMessage(`{"id":`), // malformed, must be skipped
			json.RawMessage(`{"id":"new","text":"second","created_at":"2026-08-01T11:00:00Z"}`),
		},
	}

	snap := decodeSnapshot(f, zap.NewNop())
	if len(snap) != 2 {
		t.Fatalf("len(snap) = %d, want 2 (malformed doc skipped)", len(snap))
	}
	if snap[0].ID != "new" || snap[1].ID != "old" {
		t.Errorf("order = [%s %s], want [new old]", snap[0].ID, snap[1].ID)
	}
}

func TestDecodeSnapshotLocationAndImage(t *testing.T) {
	f := frame{
		Type: frameSnapshot,
		Docs: []json.RawMessage{
			json.RawMessage(`{"id":"m1","image":"https://cdn/x.png","created_at":"2026-08-01T10:00:00Z"}`),
			json.RawMessage(`{"id":"m2","location":{"latitude":38.72,"longitude":-9.14},"created_at":"2026-08-01T09:00:00Z"}`),
		},
	}

	snap := decodeSnapshot(f, zap.NewNop())
	if snap[0].Image != "https://cdn/x.png" {
		t.Errorf("Image = %q", snap[0].Image)
	}
	if snap[1].Location == nil || snap[1].Location.Longitude != -9.14 {
		t.Errorf("Location = %+v", snap[1].Location)
	}
}

func TestEncodeDocOmitsID(t *testing.T) {
	d := encodeDoc(model.Message{ID: "should-not-survive", Text: "hello"})
	if d.ID != "" {
		t.Errorf("ID = %q, want empty (server assigns ids)", d.ID)
	}
	if d.CreatedAt == "" {
		t.Error("CreatedAt must be stamped when zero")
	}
}
