package playback

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/onnwee/cliploop/telemetry"
)

// Store is the durable backend for the register and the mailbox. Two
// implementations exist: Postgres (multi-instance, the default) and a local
// file store keeping playback state off the database on single-node
// deployments. Both must provide
// the same per-row atomicity: PollAndConsume returns a given entry to at most
// one caller, ever.
type Store interface {
	// SetNowPlaying unconditionally overwrites the channel's register row,
	// stamping a fresh started_at. Last-writer-wins by design.
	SetNowPlaying(ctx context.Context, np NowPlaying) (NowPlaying, error)

	// GetNowPlaying returns the register row or ErrNoState.
	GetNowPlaying(ctx context.Context, channel string) (*NowPlaying, error)

	// Heartbeat refreshes the register's updated_at for controllerID. It
	// succeeds when the claimant already owns the row or the current owner's
	// heartbeat is older than timeout; the returned bool reports whether the
	// claimant holds the controller role afterwards.
	Heartbeat(ctx context.Context, channel, controllerID string, timeout time.Duration) (bool, error)

	// Issue upserts the single (channel, kind) mailbox slot, replacing any
	// unconsumed prior entry, and returns the fresh nonce.
	Issue(ctx context.Context, channel, kind string, payload []byte) (string, error)

	// PollAndConsume atomically removes and returns the slot's entry if one
	// exists and is younger than window. Entries older than window are deleted
	// but never returned. Returns (nil, nil) when nothing is deliverable.
	PollAndConsume(ctx context.Context, channel, kind string, window time.Duration) (*Command, error)

	// SweepExpired prunes entries older than their kind's window. Lazy deletion
	// in PollAndConsume/Issue is the correctness mechanism; this only keeps the
	// table tidy between polls.
	SweepExpired(ctx context.Context, windows map[string]time.Duration) (int64, error)
}

// Coordinator wraps a Store with the per-kind freshness windows and the
// controller timeout, and records metrics. It is the API the HTTP layer and
// the chat bot talk to.
type Coordinator struct {
	store             Store
	windows           map[string]time.Duration
	controllerTimeout time.Duration
	lastSweepUnix     atomic.Int64
}

// NewCoordinator builds a Coordinator. Unknown kinds fall back to a 5s window.
func NewCoordinator(store Store, windows map[string]time.Duration, controllerTimeout time.Duration) *Coordinator {
	if controllerTimeout <= 0 {
		controllerTimeout = 30 * time.Second
	}
	return &Coordinator{store: store, windows: windows, controllerTimeout: controllerTimeout}
}

func (c *Coordinator) window(kind string) time.Duration {
	if w, ok := c.windows[kind]; ok && w > 0 {
		return w
	}
	return 5 * time.Second
}

// ControllerTimeout exposes the configured heartbeat staleness threshold.
func (c *Coordinator) ControllerTimeout() time.Duration { return c.controllerTimeout }

// SetNowPlaying overwrites the channel's register and returns the stored row.
func (c *Coordinator) SetNowPlaying(ctx context.Context, np NowPlaying) (NowPlaying, error) {
	stored, err := c.store.SetNowPlaying(ctx, np)
	if err != nil {
		return stored, err
	}
	telemetry.NowPlayingWrites.Inc()
	return stored, nil
}

// GetNowPlaying derives the poller-facing state: elapsed time, whether the clip
// has ended, and whether the controller heartbeat has gone stale. A channel
// with no register row yields Active=false with zeroed fields, never an
// omitted shape.
func (c *Coordinator) GetNowPlaying(ctx context.Context, channel string) (*State, error) {
	np, err := c.store.GetNowPlaying(ctx, channel)
	if err == ErrNoState {
		return &State{Active: false}, nil
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	elapsed := now.Sub(np.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return &State{
		Active:          true,
		Clip:            np,
		Elapsed:         elapsed,
		Ended:           np.Duration > 0 && elapsed >= np.Duration,
		ControllerStale: ShouldTakeOver(now, np.UpdatedAt, c.controllerTimeout),
	}, nil
}

// Heartbeat refreshes or claims the controller role for controllerID.
func (c *Coordinator) Heartbeat(ctx context.Context, channel, controllerID string) (bool, error) {
	ok, err := c.store.Heartbeat(ctx, channel, controllerID, c.controllerTimeout)
	if err != nil {
		return false, err
	}
	if ok {
		telemetry.Heartbeats.Inc()
	}
	return ok, nil
}

// Issue deposits a one-shot command for the channel, replacing any unconsumed
// prior entry of the same kind.
func (c *Coordinator) Issue(ctx context.Context, channel, kind string, payload []byte) (string, error) {
	if !ValidKind(kind) {
		return "", fmt.Errorf("unknown command kind %q", kind)
	}
	nonce, err := c.store.Issue(ctx, channel, kind, payload)
	if err != nil {
		return "", err
	}
	telemetry.CommandsIssued.WithLabelValues(kind).Inc()
	return nonce, nil
}

// Poll atomically consumes the channel's pending command of the given kind, if
// one exists within its freshness window. Exactly one concurrent poller
// observes a given entry; the rest get nil.
func (c *Coordinator) Poll(ctx context.Context, channel, kind string) (*Command, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	cmd, err := c.store.PollAndConsume(ctx, channel, kind, c.window(kind))
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		telemetry.CommandsConsumed.WithLabelValues(kind).Inc()
	}
	return cmd, nil
}

// Sweep prunes expired mailbox entries across all kinds.
func (c *Coordinator) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.SweepExpired(ctx, c.windows)
	if err != nil {
		return 0, err
	}
	c.lastSweepUnix.Store(time.Now().Unix())
	if n > 0 {
		telemetry.CommandsExpired.Add(float64(n))
	}
	return n, nil
}

// LastSweep reports when the sweeper last completed, zero before the first run.
// Readiness probes use it to notice a wedged sweep loop.
func (c *Coordinator) LastSweep() time.Time {
	u := c.lastSweepUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// NewStore selects the backend: Postgres when a database handle is supplied,
// otherwise the local file store rooted at dataDir.
func NewStore(db *sql.DB, backend, dataDir string) (Store, error) {
	switch backend {
	case "", "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres playback store requires a database connection")
		}
		return &pgStore{db: db}, nil
	case "file":
		return newFileStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown playback store backend %q", backend)
	}
}
