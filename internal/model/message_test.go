package model

import (
	"testing"
	"time"
)

func TestSortNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := Snapshot{
		{ID: "old", CreatedAt: t0},
		{ID: "new", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "mid", CreatedAt: t0.Add(time.Minute)},
	}
	s.SortNewestFirst()

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if s[i].ID != id {
			t.Errorf("s[%d].ID = %q, want %q", i, s[i].ID, id)
		}
	}
}

func TestSortStableOnEqualTimestamps(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := Snapshot{
		{ID: "a", CreatedAt: t0},
		{ID: "b", CreatedAt: t0},
		{ID: "c", CreatedAt: t0},
	}
	s.SortNewestFirst()

	for i, id := range []string{"a", "b", "c"} {
		if s[i].ID != id {
			t.Errorf("s[%d].ID = %q, want %q (delivery order must survive)", i, s[i].ID, id)
		}
	}
}

func TestEmpty(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"no payload", Message{Author: Author{ID: "u1"}}, true},
		{"text", Message{Text: "hi"}, false},
		{"image", Message{Image: "https://cdn/img.png"}, false},
		{"location", Message{Location: &LatLng{Latitude: 1, Longitude: 2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Snapshot{{ID: "m1", Text: "hi"}}
	c := s.Clone()
	c[0].Text = "changed"
	if s[0].Text != "hi" {
		t.Errorf("mutating clone changed original: %q", s[0].Text)
	}
	if Snapshot(nil).Clone() != nil {
		t.Error("Clone of nil snapshot should be nil")
	}
}
