package model

import (
	"slices"
	"time"
)

// Author identifies the sender of a message.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// LatLng is a shared location payload.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is a single chat entry. ID is assigned by the remote store on
// the first successful write; a locally echoed message carries only a
// ClientID until the authoritative snapshot replaces it.
type Message struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Image     string    `json:"image,omitempty"`
	Location  *LatLng   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Author    Author    `json:"author"`

	// Pending marks an optimistic local echo that has not yet come back
	// through the subscription. Never persisted.
	Pending bool `json:"-"`
}

// Empty reports whether the message carries no payload at all.
func (m Message) Empty() bool {
	return m.Text == "" && m.Image == "" && m.Location == nil
}

// Snapshot is the complete ordered message list as of one point in time.
// It replaces, never patches, the prior one. Ordering is by CreatedAt
// descending (newest first).
type Snapshot []Message

// SortNewestFirst orders the snapshot by CreatedAt descending. The sort
// is stable so equal timestamps keep their delivery order.
func (s Snapshot) SortNewestFirst() {
	slices.SortStableFunc(s, func(a, b Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
