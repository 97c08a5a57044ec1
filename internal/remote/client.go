// Package remote is the client for the realtime document store backing
// the chat: anonymous sign-in, single-document inserts with
// server-assigned ids, blob uploads, and a live subscription that
// delivers the full ordered result set on every change.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pmendes/parley/internal/model"
	"go.uber.org/zap"
)

// Config configures the remote client.
type Config struct {
	// BaseURL is the http(s) root of the document store.
	BaseURL string
	// Collection is the message collection name.
	Collection string
	// DisplayName is sent during anonymous sign-in.
	DisplayName string

	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client talks to the remote store. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.RWMutex
	token  string
	author model.Author
}

// New creates a remote client. Call SignInAnonymously (or WatchLink,
// which does it on demand) before subscribing or inserting.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		dialer: cfg.Dialer,
		logger: logger,
	}
}

// Author returns the identity from the last successful sign-in.
func (c *Client) Author() model.Author {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.author
}

type signInResponse struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// SignInAnonymously obtains an anonymous identity and bearer token.
func (c *Client) SignInAnonymously(ctx context.Context) (model.Author, error) {
	body, _ := json.Marshal(map[string]string{"display_name": c.cfg.DisplayName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/auth/anonymous", bytes.NewReader(body))
	if err != nil {
		return model.Author{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Author{}, fmt.Errorf("anonymous sign-in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Author{}, fmt.Errorf("anonymous sign-in: status %d: %s", resp.StatusCode, msg)
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Author{}, fmt.Errorf("decode sign-in response: %w", err)
	}

	author := model.Author{ID: out.UserID, DisplayName: c.cfg.DisplayName}
	c.mu.Lock()
	c.token = out.Token
	c.author = author
	c.mu.Unlock()
	return author, nil
}

type insertResponse struct {
	ID string `json:"id"`
}

// Insert writes a single document to the collection and returns the
// server-assigned id.
func (c *Client) Insert(ctx context.Context, msg model.Message) (string, error) {
	doc := encodeDoc(msg)
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/collections/%s/documents",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("insert document: status %d: %s", resp.StatusCode, msg)
	}

	var out insertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode insert response: %w", err)
	}
	return out.ID, nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadImage stores an image blob under ref and returns its download
// URL, for use as Message.Image.
func (c *Client) UploadImage(ctx context.Context, ref string, r io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/storage/%s", c.cfg.BaseURL, url.PathEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload image: status %d: %s", resp.StatusCode, msg)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.URL, nil
}

// ImageRef builds a unique storage reference for an upload, namespaced
// by the uploading user.
func ImageRef(userID, fileName string) string {
	return fmt.Sprintf("%s-%d-%s", userID, time.Now().UnixMilli(), fileName)
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// wsURL converts the configured base URL to its websocket equivalent.
func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = path
	return u.String(), nil
}
