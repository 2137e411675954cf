package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
)

type loadCall struct {
	url  string
	opts LoadOptions
}

// fakePlayer fails the first failLoads Load calls and accepts the rest.
type fakePlayer struct {
	mu         sync.Mutex
	failLoads  int
	loads      []loadCall
	renditions []Rendition
	rendition  int
	snapshot   PlaybackSnapshot
	events     chan Event
	closed     bool
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		renditions: []Rendition{
			{Name: "1080p", Bandwidth: 6_000_000},
			{Name: "720p", Bandwidth: 3_000_000},
			{Name: "480p", Bandwidth: 1_200_000},
		},
		rendition: -1,
		events:    make(chan Event, 4),
	}
}

func (p *fakePlayer) Load(_ context.Context, url string, opts LoadOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, loadCall{url: url, opts: opts})
	if len(p.loads) <= p.failLoads {
		return errors.New("attach failed")
	}
	return nil
}

func (p *fakePlayer) Snapshot() PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakePlayer) Renditions() []Rendition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renditions
}

func (p *fakePlayer) SetRendition(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.renditions) {
		return fmt.Errorf("rendition %d out of range", index)
	}
	p.rendition = index
	return nil
}

func (p *fakePlayer) Events() <-chan Event { return p.events }

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

func (p *fakePlayer) loadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loads)
}

func (p *fakePlayer) lastLoad() loadCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads[len(p.loads)-1]
}

func (p *fakePlayer) currentRendition() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rendition
}

// newTokenServer serves the token endpoint for a content entry with the
// given number of sources.
func newTokenServer(t *testing.T, sources int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /token/{contentType}/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":%q,"sources":%d}`, "tok-"+r.PathValue("id"), sources)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newController(t *testing.T, srv *httptest.Server, player *fakePlayer) *Controller {
	t.Helper()
	ctrl, err := New(Config{
		ServerURL:     srv.URL,
		UserID:        "viewer",
		Player:        player,
		ProbeInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var testRef = catalog.ContentRef{Type: catalog.TypeMovie, ID: 42}

func TestController_StartPlaysFirstSource(t *testing.T) {
	srv := newTokenServer(t, 3)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got, want := ctrl.State(), StatePlaying; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
	if got := ctrl.SourceIndex(); got != 0 {
		t.Fatalf("SourceIndex() = %d, want 0", got)
	}
	load := player.lastLoad()
	if !strings.Contains(load.url, "/relay/tok-42") {
		t.Fatalf("Load url = %q, want relay URL with token", load.url)
	}
	if strings.Contains(load.url, "src=") {
		t.Fatalf("Load url = %q, first source must not carry a src override", load.url)
	}
}

func TestController_FailsOverPastBrokenSources(t *testing.T) {
	srv := newTokenServer(t, 3)
	player := newFakePlayer()
	player.failLoads = 2
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := ctrl.SourceIndex(); got != 2 {
		t.Fatalf("SourceIndex() = %d, want 2", got)
	}
	if got := player.lastLoad().url; !strings.Contains(got, "src=2") {
		t.Fatalf("Load url = %q, want src=2 override", got)
	}
}

func TestController_AllSourcesExhausted(t *testing.T) {
	srv := newTokenServer(t, 2)
	player := newFakePlayer()
	player.failLoads = 2
	ctrl := newController(t, srv, player)

	err := ctrl.Start(context.Background(), testRef)
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatalf("Start() error = %v, want ErrAllSourcesExhausted", err)
	}
	if got, want := ctrl.State(), StateFailed; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
	if !errors.Is(ctrl.Err(), ErrAllSourcesExhausted) {
		t.Fatalf("Err() = %v, want ErrAllSourcesExhausted", ctrl.Err())
	}
}

func TestController_FatalEventTriggersFailover(t *testing.T) {
	srv := newTokenServer(t, 2)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	player.mu.Lock()
	player.snapshot = PlaybackSnapshot{Position: 90 * time.Second, Paused: true}
	player.mu.Unlock()
	player.events <- Event{Kind: EventFatal, Err: errors.New("decode error")}

	waitFor(t, "failover to source 1", func() bool { return ctrl.SourceIndex() == 1 })

	load := player.lastLoad()
	if !strings.Contains(load.url, "src=1") {
		t.Fatalf("Load url = %q, want src=1 override", load.url)
	}
	if got, want := load.opts.Position, 90*time.Second; got != want {
		t.Fatalf("restored position = %v, want %v", got, want)
	}
	if !load.opts.Paused {
		t.Fatal("restored pause state lost across failover")
	}
}

func TestController_FatalEventNeverWraps(t *testing.T) {
	srv := newTokenServer(t, 1)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	player.events <- Event{Kind: EventFatal, Err: errors.New("decode error")}

	waitFor(t, "terminal failure", func() bool { return ctrl.State() == StateFailed })
	if got := player.loadCount(); got != 1 {
		t.Fatalf("Load calls = %d, want 1 (no wrap back to source 0)", got)
	}
}

func TestController_CycleSourceWraps(t *testing.T) {
	srv := newTokenServer(t, 2)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	ctx := context.Background()
	if err := ctrl.Start(ctx, testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ctrl.CycleSource(ctx); err != nil {
		t.Fatalf("CycleSource() error = %v", err)
	}
	if got := ctrl.SourceIndex(); got != 1 {
		t.Fatalf("SourceIndex() = %d, want 1", got)
	}
	if err := ctrl.CycleSource(ctx); err != nil {
		t.Fatalf("CycleSource() error = %v", err)
	}
	if got := ctrl.SourceIndex(); got != 0 {
		t.Fatalf("SourceIndex() = %d, want 0 after wrap", got)
	}
}

func TestController_CycleSourceRequiresPlayback(t *testing.T) {
	srv := newTokenServer(t, 2)
	ctrl := newController(t, srv, newFakePlayer())

	if err := ctrl.CycleSource(context.Background()); !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("CycleSource() error = %v, want ErrNotPlaying", err)
	}
}

func TestController_StartTwice(t *testing.T) {
	srv := newTokenServer(t, 1)
	ctrl := newController(t, srv, newFakePlayer())

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ctrl.Start(context.Background(), testRef); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_TokenErrorSurfacesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /token/{contentType}/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := newController(t, srv, newFakePlayer())
	err := ctrl.Start(context.Background(), testRef)
	var reqErr *TokenRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Start() error = %v, want *TokenRequestError", err)
	}
	if reqErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want %d", reqErr.StatusCode, http.StatusForbidden)
	}
	if got, want := ctrl.State(), StateFailed; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
}

func TestController_SetTierPinsRendition(t *testing.T) {
	srv := newTokenServer(t, 1)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ctrl.SetTier(TierLow); err != nil {
		t.Fatalf("SetTier() error = %v", err)
	}
	if got, want := player.currentRendition(), 2; got != want {
		t.Fatalf("rendition = %d, want %d (lowest)", got, want)
	}

	// A probe result while pinned is recorded but not applied.
	sample := BandwidthSample{Kbps: 9000, Class: ClassHigh, At: time.Now()}
	ctrl.recordSample(sample)
	ctrl.applySample(sample)
	if got, want := player.currentRendition(), 2; got != want {
		t.Fatalf("rendition = %d after pinned-tier sample, want %d", got, want)
	}
	if got := len(ctrl.Samples()); got != 1 {
		t.Fatalf("Samples() length = %d, want 1", got)
	}

	if err := ctrl.SetTier(TierAuto); err != nil {
		t.Fatalf("SetTier(auto) error = %v", err)
	}
	ctrl.applySample(sample)
	if got, want := player.currentRendition(), 0; got != want {
		t.Fatalf("rendition = %d after auto sample, want %d (highest)", got, want)
	}
}

func TestController_ProbeSkippedWhileHidden(t *testing.T) {
	srv := newTokenServer(t, 1)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctrl.SetVisible(false)
	ctrl.maybeProbe(context.Background())

	ctrl.mu.Lock()
	probing := ctrl.probing
	ctrl.mu.Unlock()
	if probing {
		t.Fatal("probe launched while hidden")
	}
	if got := len(ctrl.Samples()); got != 0 {
		t.Fatalf("Samples() length = %d, want 0", got)
	}
}

func TestController_ProbeSingleFlight(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /token/{contentType}/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"tok","sources":1}`)
	})
	var probes sync.WaitGroup
	probes.Add(1)
	mux.HandleFunc("GET /probe", func(w http.ResponseWriter, r *http.Request) {
		probes.Done()
		<-release
		w.Write(make([]byte, 1024))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := newController(t, srv, newFakePlayer())
	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctrl.maybeProbe(context.Background())
	probes.Wait()

	// A second tick while the first probe is in flight must not stack.
	ctrl.maybeProbe(context.Background())
	close(release)

	waitFor(t, "probe completion", func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return !ctrl.probing
	})
	if got := len(ctrl.Samples()); got != 1 {
		t.Fatalf("Samples() length = %d, want 1", got)
	}
}

func TestController_CloseStopsBackgroundWork(t *testing.T) {
	srv := newTokenServer(t, 1)
	player := newFakePlayer()
	ctrl := newController(t, srv, player)

	if err := ctrl.Start(context.Background(), testRef); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-ctrl.done:
	default:
		t.Fatal("event loop still running after Close")
	}
	if !player.closed {
		t.Fatal("player not closed")
	}
	if got, want := ctrl.State(), StateClosed; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
	if err := ctrl.Start(context.Background(), testRef); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start() after Close error = %v, want ErrClosed", err)
	}
}
