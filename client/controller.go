// Package client drives an embedded media player against a streamgate relay:
// it requests capability tokens, fails over between sources on fatal errors
// and adapts the quality rendition to measured bandwidth.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/famomatic/streamgate/internal/catalog"
)

// State is the controller's playback state.
type State int

const (
	StateIdle State = iota
	StateProbing
	StatePlaying
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StatePlaying:
		return "playing"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Controller owns one playback session: a player, a token, a source cursor
// and a probe loop. All background work stops deterministically on Close.
type Controller struct {
	cfg    Config
	player Player
	logger Logger

	mu          sync.Mutex
	state       State
	ref         catalog.ContentRef
	sessionID   string
	sourceCount int
	sourceIndex int
	tier        QualityTier
	samples     []BandwidthSample
	visible     bool
	lastErr     error

	probing bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Controller. Playback does not begin until Start.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &Controller{
		cfg:       cfg,
		player:    cfg.Player,
		logger:    cfg.Logger,
		state:     StateIdle,
		sessionID: uuid.NewString(),
		tier:      TierAuto,
		visible:   true,
		done:      make(chan struct{}),
	}, nil
}

// SessionID identifies this playback session in logs.
func (c *Controller) SessionID() string { return c.sessionID }

// State reports the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the terminal error after StateFailed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SourceIndex reports the index of the source currently playing.
func (c *Controller) SourceIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceIndex
}

// Samples returns the recorded bandwidth history, oldest first.
func (c *Controller) Samples() []BandwidthSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BandwidthSample(nil), c.samples...)
}

// SetVisible tells the controller whether a playback surface is actively
// visible. Probes only run while visible.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
}

// Start begins playback at the highest-priority source. It fetches a token,
// attaches the player and launches the event/probe loop.
func (c *Controller) Start(ctx context.Context, ref catalog.ContentRef) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateProbing
	c.ref = ref
	c.mu.Unlock()

	grant, err := c.fetchToken(ctx, ref)
	if err != nil {
		c.fail(err)
		return err
	}
	c.mu.Lock()
	c.sourceCount = grant.Sources
	c.mu.Unlock()

	if err := c.tryFrom(ctx, 0, PlaybackSnapshot{}); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(loopCtx)
	return nil
}

// CycleSource manually switches to the next source, wrapping modulo the
// source count. Playback position and pause state carry over.
func (c *Controller) CycleSource(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	next := (c.sourceIndex + 1) % c.sourceCount
	c.mu.Unlock()

	snap := c.player.Snapshot()
	return c.attempt(ctx, next, snap)
}

// SetTier pins a quality tier or returns to automatic selection. A pinned
// tier is applied to the player immediately; subsequent probe results are
// recorded but not applied until the tier returns to auto.
func (c *Controller) SetTier(tier QualityTier) error {
	c.mu.Lock()
	c.tier = tier
	c.mu.Unlock()

	class, pinned := classForTier(tier)
	if !pinned {
		return nil
	}
	if index, ok := renditionIndexFor(class, len(c.player.Renditions())); ok {
		return c.player.SetRendition(index)
	}
	return nil
}

// Tier reports the current quality tier setting.
func (c *Controller) Tier() QualityTier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// Close tears down the probe loop and the player. No background work
// continues after Close returns.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-c.done
	}
	return c.player.Close()
}

// run is the controller's event loop: one goroutine multiplexing player
// events and the probe ticker until Close.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.player.Events():
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		case <-ticker.C:
			c.maybeProbe(ctx)
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventFatal:
		c.logger.Warnf("fatal playback error on source %d: %v", c.SourceIndex(), ev.Err)
		snap := c.player.Snapshot()
		c.mu.Lock()
		next := c.sourceIndex + 1
		c.mu.Unlock()
		// Automatic failover never wraps; fully-down content must not
		// spin through its sources forever.
		_ = c.tryFrom(ctx, next, snap)
	case EventStalled:
		c.logger.Infof("playback stalled on source %d", c.SourceIndex())
	case EventEnded:
		c.logger.Infof("playback ended")
	}
}

// tryFrom attempts sources in ascending index order starting at from. When
// every remaining source fails the controller transitions to StateFailed
// with ErrAllSourcesExhausted.
func (c *Controller) tryFrom(ctx context.Context, from int, snap PlaybackSnapshot) error {
	c.mu.Lock()
	count := c.sourceCount
	c.mu.Unlock()

	for index := from; index < count; index++ {
		if err := c.attempt(ctx, index, snap); err != nil {
			c.logger.Warnf("source %d failed: %v", index, err)
			continue
		}
		return nil
	}
	c.fail(ErrAllSourcesExhausted)
	return ErrAllSourcesExhausted
}

// attempt attaches the player to one source, restoring the given snapshot.
// A fresh token is fetched per attempt so long sessions never ride an
// almost-expired token into a new source.
func (c *Controller) attempt(ctx context.Context, index int, snap PlaybackSnapshot) error {
	grant, err := c.fetchToken(ctx, c.ref)
	if err != nil {
		return err
	}

	streamURL := c.cfg.ServerURL + "/relay/" + grant.Token
	if index > 0 {
		streamURL += "?src=" + strconv.Itoa(index)
	}
	if err := c.player.Load(ctx, streamURL, LoadOptions{Position: snap.Position, Paused: snap.Paused}); err != nil {
		return err
	}

	c.mu.Lock()
	c.sourceIndex = index
	c.sourceCount = grant.Sources
	c.state = StatePlaying
	c.mu.Unlock()
	c.logger.Infof("playing source %d of %d", index, grant.Sources)
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateFailed
		c.lastErr = err
	}
	c.mu.Unlock()
}

type tokenGrant struct {
	Token   string `json:"token"`
	Sources int    `json:"sources"`
}

// fetchToken requests a capability token for ref from the relay server.
func (c *Controller) fetchToken(ctx context.Context, ref catalog.ContentRef) (tokenGrant, error) {
	url := fmt.Sprintf("%s/token/%s/%d", c.cfg.ServerURL, ref.Type, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tokenGrant{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.UserID)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return tokenGrant{}, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tokenGrant{}, &TokenRequestError{StatusCode: resp.StatusCode}
	}
	var grant tokenGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return tokenGrant{}, fmt.Errorf("decode token response: %w", err)
	}
	if grant.Token == "" {
		return tokenGrant{}, fmt.Errorf("empty token in response")
	}
	return grant, nil
}

// TokenRequestError reports a non-200 answer from the token endpoint.
type TokenRequestError struct {
	StatusCode int
}

func (e *TokenRequestError) Error() string {
	return fmt.Sprintf("token request failed: status=%d", e.StatusCode)
}
