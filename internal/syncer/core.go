// Package syncer decides, at any instant, whether the visible message
// list is driven by the live remote subscription or by the locally
// cached snapshot, and gates outgoing sends on that decision.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pmendes/parley/internal/bus"
	"github.com/pmendes/parley/internal/model"
	"github.com/pmendes/parley/internal/netmon"
	"go.uber.org/zap"
)

// Mode is the data source currently feeding the visible snapshot.
type Mode string

const (
	// Live: the visible snapshot comes from the remote subscription.
	Live Mode = "LIVE"
	// Offline: the visible snapshot comes from the last cached copy.
	Offline Mode = "OFFLINE"
)

// SendResult is the admission decision for an outgoing message.
type SendResult string

const (
	Accepted SendResult = "ACCEPTED"
	Rejected SendResult = "REJECTED"
)

// ModeChange is the bus payload for chat.mode_changed events.
type ModeChange struct {
	From Mode
	To   Mode
}

// Handle is an open subscription that can be torn down.
type Handle interface {
	Close()
}

// Feed opens live queries over the message collection. Each onBatch
// delivery carries the full current result set, replacing the prior one.
type Feed interface {
	Subscribe(onBatch func(model.Snapshot)) (Handle, error)
}

// Inserter writes a single message to the remote store, returning the
// server-assigned id.
type Inserter interface {
	Insert(ctx context.Context, msg model.Message) (string, error)
}

// SnapshotCache persists and recalls the last known good snapshot.
type SnapshotCache interface {
	SaveSnapshot(key string, snap model.Snapshot) error
	LoadSnapshot(key string) (model.Snapshot, bool, error)
}

type eventKind int

const (
	evConnectivity eventKind = iota
	evBatch
	evEcho
)

type event struct {
	kind  eventKind
	conn  netmon.State
	batch model.Snapshot
	// gen identifies the subscription that produced the batch; the
	// consumer drops batches from any generation but the current one.
	gen  uint64
	echo *model.Message
}

// modeTransitions maps the current mode and a connectivity report to
// the next mode. Absent entries are no-ops: redundant signals never
// reopen or reload, and Unknown never moves the machine.
var modeTransitions = map[Mode]map[netmon.State]Mode{
	Offline: {netmon.Connected: Live},
	Live:    {netmon.Disconnected: Offline},
}

// Core is the synchronization state machine. All mutations funnel
// through a single consumer goroutine; readers see an immutable,
// atomically swapped snapshot. One Core serves one open chat session.
type Core struct {
	feed     Feed
	cache    SnapshotCache
	monitor  netmon.Monitor
	sender   Inserter
	bus      *bus.Bus
	logger   *zap.Logger
	cacheKey string

	events  chan event
	visible atomic.Pointer[model.Snapshot]
	done    chan struct{}

	mu     sync.RWMutex
	mode   Mode
	author model.Author

	// Owned by the consumer goroutine.
	sub         Handle
	gen         uint64
	cacheLoaded bool

	cancel   context.CancelFunc
	unsubMon func()
	stopOnce sync.Once
}

// New creates a core in Offline mode. cacheKey names the persisted
// snapshot slot, normally the collection name.
func New(feed Feed, cache SnapshotCache, monitor netmon.Monitor, sender Inserter, b *bus.Bus, cacheKey string, logger *zap.Logger) *Core {
	c := &Core{
		feed:     feed,
		cache:    cache,
		monitor:  monitor,
		sender:   sender,
		bus:      b,
		logger:   logger,
		cacheKey: cacheKey,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		mode:     Offline,
	}
	empty := model.Snapshot{}
	c.visible.Store(&empty)
	return c
}

// Start loads the cached snapshot, subscribes to connectivity
// transitions, and begins consuming events.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.unsubMon = c.monitor.Subscribe(func(s netmon.State) {
		c.enqueue(event{kind: evConnectivity, conn: s})
	})
	// Prime with the monitor's current belief; Unknown is ignored by
	// the consumer.
	c.enqueue(event{kind: evConnectivity, conn: c.monitor.Current()})

	go c.loop(ctx)
}

// Stop tears the core down: unsubscribes from the monitor, closes any
// open subscription, and waits for the consumer to exit. Idempotent.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		if c.unsubMon != nil {
			c.unsubMon()
		}
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
	})
}

// Mode returns the current sync mode.
func (c *Core) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Snapshot returns the visible message list. The returned slice is
// immutable: every replacement is a fresh copy-and-swap.
func (c *Core) Snapshot() model.Snapshot {
	return *c.visible.Load()
}

// SetAuthor records the signed-in identity stamped onto outgoing sends.
func (c *Core) SetAuthor(a model.Author) {
	c.mu.Lock()
	c.author = a
	c.mu.Unlock()
}

// Send applies the admission rule to a candidate message. While
// Offline every candidate is rejected outright: no queue, no retry on
// reconnect — the UI disables the affordance, this is the backstop.
// On acceptance the candidate is echoed into the visible list
// immediately and written to the remote store fire-and-forget; the
// authoritative snapshot that comes back through the subscription
// replaces the echo wholesale.
func (c *Core) Send(ctx context.Context, candidate model.Message) SendResult {
	if candidate.Empty() {
		return Rejected
	}

	c.mu.RLock()
	mode := c.mode
	author := c.author
	c.mu.RUnlock()

	if mode != Live {
		if c.bus != nil {
			c.bus.Publish(bus.Event{Kind: bus.KindSendRejected, Timestamp: time.Now(), Payload: candidate})
		}
		return Rejected
	}

	msg := candidate
	msg.ClientID = uuid.NewString()
	msg.Author = author
	msg.Pending = true
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	c.enqueue(event{kind: evEcho, echo: &msg})

	// The write itself is fire-and-forget: the subscription observes
	// the resulting change and delivers it back as a normal batch.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if _, err := c.sender.Insert(sendCtx, msg); err != nil {
			c.logger.Warn("remote insert failed", zap.Error(err), zap.String("client_id", msg.ClientID))
		}
	}()

	return Accepted
}

// enqueue hands an event to the consumer. Blocks if the consumer is
// behind; unblocks once the core is stopped.
func (c *Core) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Core) loop(ctx context.Context) {
	defer close(c.done)

	// Startup fallback: the UI gets the last persisted list before any
	// connectivity report arrives. A read failure yields an empty list,
	// never a fatal error.
	c.loadCache()

	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case evConnectivity:
				c.transition(ev.conn)
			case evBatch:
				c.applyBatch(ev.batch, ev.gen)
			case evEcho:
				c.applyEcho(ev.echo)
			}
		case <-ctx.Done():
			c.closeSub()
			return
		}
	}
}

// transition applies a connectivity report to the mode state machine.
// Only monitor reports move the mode; subscription errors never do.
func (c *Core) transition(s netmon.State) {
	cur := c.Mode()
	next, ok := modeTransitions[cur][s]
	if !ok {
		// No transition. An Offline core that has never managed a cache
		// read this session still attempts one on a redundant
		// Disconnected report.
		if cur == Offline && s == netmon.Disconnected && !c.cacheLoaded {
			c.loadCache()
		}
		return
	}

	switch next {
	case Live:
		// Tag deliveries with the subscription generation so a frame
		// still in flight from a closed reader can never be applied.
		c.gen++
		gen := c.gen
		sub, err := c.feed.Subscribe(func(snap model.Snapshot) {
			c.enqueue(event{kind: evBatch, batch: snap, gen: gen})
		})
		if err != nil {
			c.logger.Warn("subscription open failed, staying offline", zap.Error(err))
			return
		}
		c.sub = sub
		c.setMode(Live)
	case Offline:
		c.closeSub()
		// The in-memory live list may be mid-update; the durable copy
		// is the one the UI can trust.
		c.loadCache()
		c.setMode(Offline)
	}
}

// applyBatch replaces the visible snapshot with a subscription delivery
// and writes it through to the cache. A batch that raced a flip to
// Offline, or that came from a superseded subscription after a quick
// reconnect, is discarded: mode and generation are checked at apply
// time, inside the single consumer.
func (c *Core) applyBatch(snap model.Snapshot, gen uint64) {
	if c.Mode() != Live || gen != c.gen {
		c.logger.Debug("discarding stale batch", zap.Int("messages", len(snap)))
		return
	}

	c.swap(snap)

	if err := c.cache.SaveSnapshot(c.cacheKey, snap); err != nil {
		// Cache write failure never interrupts the live path and never
		// rolls back the in-memory replacement.
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

// applyEcho prepends an optimistic local echo. No cache write: only
// authoritative subscription batches are durable.
func (c *Core) applyEcho(msg *model.Message) {
	if c.Mode() != Live {
		return
	}
	cur := c.Snapshot()
	next := make(model.Snapshot, 0, len(cur)+1)
	next = append(next, *msg)
	next = append(next, cur...)
	c.swap(next)
}

func (c *Core) loadCache() {
	snap, found, err := c.cache.LoadSnapshot(c.cacheKey)
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		snap = model.Snapshot{}
	}
	if !found && snap == nil {
		snap = model.Snapshot{}
	}
	c.swap(snap)
	c.cacheLoaded = true
}

// swap publishes a complete snapshot. Readers observe either the old
// list or the new one, never an interleaving.
func (c *Core) swap(snap model.Snapshot) {
	c.visible.Store(&snap)
	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: bus.KindSnapshot, Timestamp: time.Now(), Payload: snap})
	}
}

func (c *Core) setMode(to Mode) {
	c.mu.Lock()
	from := c.mode
	c.mode = to
	c.mu.Unlock()
	if from == to {
		return
	}
	c.logger.Info("sync mode changed", zap.String("from", string(from)), zap.String("to", string(to)))
	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: bus.KindModeChanged, Timestamp: time.Now(), Payload: ModeChange{From: from, To: to}})
	}
}

// closeSub tears down the open subscription, if any. Nil-safe so the
// teardown path never double-closes or closes a never-opened handle.
// Bumps the generation so the closed reader's in-flight frames are
// dropped even before the next subscription opens.
func (c *Core) closeSub() {
	c.gen++
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}
