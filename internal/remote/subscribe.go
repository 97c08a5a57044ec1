package remote

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pmendes/parley/internal/model"
	"go.uber.org/zap"
)

// Subscription is an open live query. Close is idempotent and safe to
// call even if no batch was ever delivered.
type Subscription struct {
	conn   *websocket.Conn
	once   sync.Once
	done   chan struct{}
	logger *zap.Logger
}

// Subscribe opens a live query over the collection, ordered by
// created_at descending. onBatch is invoked with the full current
// result set every time the collection changes; each delivery replaces
// the previous one entirely. Delivery happens on the subscription's
// reader goroutine.
func (c *Client) Subscribe(onBatch func(model.Snapshot)) (*Subscription, error) {
	raw, err := c.wsURL("/v1/subscribe")
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	q.Set("collection", c.cfg.Collection)
	q.Set("order_by", "created_at")
	q.Set("dir", "desc")
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.bearer())

	conn, _, err := c.dialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial subscription: %w", err)
	}

	sub := &Subscription{
		conn:   conn,
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go sub.readLoop(onBatch)
	return sub, nil
}

// Close stops delivery. Safe to call multiple times and from teardown
// even if the subscription never delivered.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Subscription) readLoop(onBatch func(model.Snapshot)) {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
				// Closed by us; expected.
			default:
				s.logger.Warn("subscription read failed", zap.Error(err))
			}
			return
		}

		switch f.Type {
		case frameSnapshot:
			onBatch(decodeSnapshot(f, s.logger))
		case frameError:
			// A server-side delivery error is not a connectivity change;
			// log it and keep reading.
			s.logger.Warn("subscription server error", zap.String("message", f.Message))
		default:
			s.logger.Warn("unknown frame type", zap.String("type", f.Type))
		}
	}
}
