// Package realtime keeps one live event channel open per active household
// and translates server-pushed domain events into cache invalidations.
// Transport failures are routine here: the channel reconnects with capped
// exponential backoff and never surfaces an error to the caller, because the
// application stays usable on last-known cache state.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/trackerhq/tracker-core/internal/cache"
	"github.com/trackerhq/tracker-core/internal/credential"
)

// State is the connection lifecycle phase. Owned exclusively by the
// Supervisor; the hosting application only observes it through the callback.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateReconnectPending State = "reconnect_pending"
)

// Invalidator marks cached query results stale. The supervisor never reads
// or writes cached values; "what changed" is its whole responsibility.
type Invalidator interface {
	Invalidate(ctx context.Context, patterns ...cache.Key)
}

// StateCallback is invoked on every state transition.
type StateCallback func(State)

// Config holds the connection settings for the event channel.
type Config struct {
	// BaseURL is the backend's HTTP base, e.g. https://api.example.com.
	// The channel uses the matching streaming scheme (ws/wss).
	BaseURL string

	// SyncPath is the channel path prefix. Defaults to /api/ws.
	SyncPath string

	// BackoffInitial and BackoffCap tune the reconnect delay: exponential
	// growth from BackoffInitial, never above BackoffCap. Defaults: 1s, 30s.
	// JitterPercent spreads each delay ±N% so a fleet of clients does not
	// reconnect in lockstep; zero disables jitter.
	BackoffInitial time.Duration
	BackoffCap     time.Duration
	JitterPercent  uint64

	// DialTimeout bounds a single handshake attempt. Defaults to 10s.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncPath == "" {
		c.SyncPath = "/api/ws"
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Supervisor maintains exactly one live event channel for the active
// household. Switching households or tearing down cancels any pending
// reconnect timer; an intentional close never triggers another attempt.
type Supervisor struct {
	cfg      Config
	cred     credential.Provider
	inv      Invalidator
	callback StateCallback
	logger   *slog.Logger
	dial     dialFunc

	// switchMu serializes SetHousehold and Teardown so two concurrent
	// switches cannot each leave a run loop behind.
	switchMu sync.Mutex

	mu        sync.Mutex
	state     State
	household string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSupervisor creates a Supervisor. cb may be nil.
func NewSupervisor(cfg Config, cred credential.Provider, inv Invalidator, cb StateCallback, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		cred:     cred,
		inv:      inv,
		callback: cb,
		logger:   logger,
		dial:     wsDial,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetHousehold makes householdID the active household, tearing down any
// channel for a previous one and opening a new channel. An empty id is a
// plain teardown (logout). ctx bounds the channel's whole lifetime; its
// cancellation is equivalent to Teardown.
func (s *Supervisor) SetHousehold(ctx context.Context, householdID string) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.household == householdID && s.cancel != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.teardown()

	if householdID == "" {
		return
	}

	s.mu.Lock()
	s.household = householdID
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.run(childCtx, householdID, done)
}

// Teardown closes the channel and stops the reconnect loop. After it returns
// no further connection attempt occurs, even if a backoff delay was pending.
func (s *Supervisor) Teardown() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.teardown()
}

func (s *Supervisor) teardown() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.household = ""
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("teardown timed out waiting for channel loop")
	}
}

// run is the connect/read/backoff loop for one household. It exits only when
// ctx is canceled, always leaving the state Disconnected.
func (s *Supervisor) run(ctx context.Context, householdID string, done chan struct{}) {
	defer close(done)
	defer s.setState(StateDisconnected)

	backoff := s.newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		token, ok := s.cred.Token()
		if !ok {
			// Not logged in (or token expired). Stay down and re-check
			// on the backoff cadence; the auth flow owns any user-facing
			// alarm, not this loop.
			s.setState(StateDisconnected)
			if !sleep(ctx, next(backoff)) {
				return
			}
			continue
		}

		addr, err := channelURL(s.cfg.BaseURL, s.cfg.SyncPath, householdID, token)
		if err != nil {
			s.logger.Error("invalid channel address", "error", err)
			// The loop is giving up on its own, not being torn down.
			// Release the slot so a later SetHousehold with the same id
			// does not mistake this dead loop for a live channel.
			s.mu.Lock()
			if s.done == done {
				if s.cancel != nil {
					s.cancel()
				}
				s.cancel = nil
				s.done = nil
				s.household = ""
			}
			s.mu.Unlock()
			return
		}

		s.setState(StateConnecting)
		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		conn, err := s.dial(dialCtx, addr)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setState(StateReconnectPending)
			delay := next(backoff)
			s.logger.Debug("handshake failed", "household", householdID, "retry_in", delay, "error", err)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.setState(StateConnected)
		s.logger.Info("event channel connected", "household", householdID)
		backoff = s.newBackoff()

		err = s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.setState(StateReconnectPending)
		delay := next(backoff)
		s.logger.Debug("event channel dropped", "household", householdID, "retry_in", delay, "error", err)
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()

	if changed && s.callback != nil {
		s.callback(st)
	}
}

// newBackoff builds a fresh delay sequence: exponential from BackoffInitial,
// jittered, then capped so no delay ever exceeds BackoffCap.
func (s *Supervisor) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.BackoffInitial)
	if s.cfg.JitterPercent > 0 {
		b = retry.WithJitterPercent(s.cfg.JitterPercent, b)
	}
	return retry.WithCappedDuration(s.cfg.BackoffCap, b)
}

func next(b retry.Backoff) time.Duration {
	delay, _ := b.Next()
	return delay
}

// sleep waits for d or until ctx is canceled. Returns false on cancellation
// so callers stop instead of reconnecting after an intentional close.
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
