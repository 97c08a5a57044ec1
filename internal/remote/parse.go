package remote

import (
	"encoding/json"
	"time"

	"github.com/pmendes/parley/internal/model"
	"go.uber.org/zap"
)

// Frame types pushed by the store.
const (
	frameSnapshot = "snapshot"
	frameError    = "error"
)

// frame is the wire envelope for subscription pushes.
type frame struct {
	Type    string            `json:"type"`
	Docs    []json.RawMessage `json:"docs,omitempty"`
	Message string            `json:"message,omitempty"`
}

// doc is the wire shape of a stored message document.
type doc struct {
	ID        string        `json:"id"`
	Text      string        `json:"text,omitempty"`
	Image     string        `json:"image,omitempty"`
	Location  *model.LatLng `json:"location,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
	Author    model.Author  `json:"author"`
}

// decodeSnapshot turns a snapshot frame into a full model.Snapshot.
// A malformed document is skipped rather than discarding the batch.
func decodeSnapshot(f frame, logger *zap.Logger) model.Snapshot {
	snap := make(model.Snapshot, 0, len(f.Docs))
	for _, raw := range f.Docs {
		var d doc
		if err := json.Unmarshal(raw, &d); err != nil {
			logger.Warn("skipping malformed document", zap.Error(err))
			continue
		}
		snap = append(snap, parseDoc(d))
	}
	snap.SortNewestFirst()
	return snap
}

// parseDoc normalizes a wire document. An absent or unparseable
// created_at becomes the current wall-clock time; one bad field must
// not sink an otherwise-valid snapshot.
func parseDoc(d doc) model.Message {
	createdAt := time.Now().UTC()
	if d.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, d.CreatedAt); err == nil {
			createdAt = ts
		}
	}
	return model.Message{
		ID:        d.ID,
		Text:      d.Text,
		Image:     d.Image,
		Location:  d.Location,
		CreatedAt: createdAt,
		Author:    d.Author,
	}
}

// encodeDoc converts an outgoing message to its wire shape. The id is
// omitted: the store assigns it on insert.
func encodeDoc(m model.Message) doc {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return doc{
		Text:      m.Text,
		Image:     m.Image,
		Location:  m.Location,
		CreatedAt: createdAt.Format(time.RFC3339Nano),
		Author:    m.Author,
	}
}
