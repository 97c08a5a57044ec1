package remote

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WatchLink maintains a long-lived control connection to the store and
// reports its state through onUp/onDown. It signs in first when no
// token is held yet, redials with capped exponential backoff, and
// returns when ctx is cancelled. This is the app's reachability source:
// the connectivity tracker is fed from these callbacks, never from
// subscription-level errors.
func (c *Client) WatchLink(ctx context.Context, onUp, onDown func()) {
	backoff := c.cfg.ReconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.ensureSignedIn(ctx); err != nil {
			c.logger.Warn("sign-in failed, link down", zap.Error(err))
			onDown()
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.ReconnectMax)
			continue
		}

		raw, err := c.wsURL("/v1/link")
		if err != nil {
			c.logger.Error("bad base url", zap.Error(err))
			return
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+c.bearer())

		conn, _, err := c.dialer.DialContext(ctx, raw, header)
		if err != nil {
			c.logger.Warn("link dial failed", zap.Error(err))
			onDown()
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.ReconnectMax)
			continue
		}

		c.logger.Info("link established")
		backoff = c.cfg.ReconnectMin
		onUp()

		// Close the socket when ctx ends so the read below unblocks.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		stop()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("link lost")
		onDown()
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (c *Client) ensureSignedIn(ctx context.Context) error {
	if c.bearer() != "" {
		return nil
	}
	_, err := c.SignInAnonymously(ctx)
	return err
}

// sleep waits d or until ctx is done; reports whether the caller should
// continue.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
