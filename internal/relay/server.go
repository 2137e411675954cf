// Package relay terminates client stream requests: it validates capability
// tokens, resolves origins, rewrites playlists and relays segment bytes.
// Handlers are stateless across requests, so the server replicates
// horizontally; the only shared mutable state is the resolver's cache.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
	"github.com/famomatic/streamgate/internal/history"
	"github.com/famomatic/streamgate/internal/resolver"
	"github.com/famomatic/streamgate/internal/token"
)

// DefaultHistoryTimeout bounds the fire-and-forget history write.
const DefaultHistoryTimeout = 2 * time.Second

// AuthFunc extracts the caller's user id from a request. The second return
// is false when the request carries no usable identity.
type AuthFunc func(*http.Request) (string, bool)

// BearerAuth reads the user id from the Authorization bearer value. It
// stands in for the external session system, which is out of scope here;
// deployments fronted by an auth proxy replace it via Config.Authenticate.
func BearerAuth(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return raw, raw != ""
}

// Config holds server construction parameters.
type Config struct {
	// Codec validates and issues capability tokens. Required.
	Codec *token.Codec
	// Resolver elects origin sources. Required.
	Resolver *resolver.Resolver
	// Catalog answers premium/entitlement checks. Required.
	Catalog catalog.Catalog
	// History records playback starts. If nil, events are discarded.
	History history.Recorder
	// Logger receives structured request logs. If nil, logs are discarded.
	Logger *slog.Logger
	// Upstream performs origin fetches. If nil, http.DefaultClient.
	Upstream *http.Client
	// Authenticate extracts caller identity. If nil, BearerAuth.
	Authenticate AuthFunc
	// ProbeSize is the bandwidth probe body size in bytes. If zero, 256 KiB.
	ProbeSize int
	// HistoryTimeout bounds each history write. If zero, DefaultHistoryTimeout.
	HistoryTimeout time.Duration
}

// Server is the relay proxy HTTP surface.
type Server struct {
	codec          *token.Codec
	resolver       *resolver.Resolver
	catalog        catalog.Catalog
	history        history.Recorder
	logger         *slog.Logger
	upstream       *http.Client
	authenticate   AuthFunc
	historyTimeout time.Duration
	probeBody      []byte
	mux            *http.ServeMux
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Codec == nil {
		return nil, errors.New("relay server requires a token codec")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("relay server requires a resolver")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("relay server requires a catalog")
	}
	recorder := cfg.History
	if recorder == nil {
		recorder = history.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.DefaultClient
	}
	authenticate := cfg.Authenticate
	if authenticate == nil {
		authenticate = BearerAuth
	}
	probeSize := cfg.ProbeSize
	if probeSize <= 0 {
		probeSize = 256 * 1024
	}
	historyTimeout := cfg.HistoryTimeout
	if historyTimeout <= 0 {
		historyTimeout = DefaultHistoryTimeout
	}

	s := &Server{
		codec:          cfg.Codec,
		resolver:       cfg.Resolver,
		catalog:        cfg.Catalog,
		history:        recorder,
		logger:         logger,
		upstream:       upstream,
		authenticate:   authenticate,
		historyTimeout: historyTimeout,
		probeBody:      probeBody(probeSize),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /probe", s.handleProbe)
	mux.HandleFunc("GET /token/{contentType}/{id}", s.handleToken)
	mux.HandleFunc("GET /relay/{token}", s.handleRelay)
	mux.HandleFunc("GET /relay/{token}/{rest...}", s.handleRelay)
	s.mux = mux
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

// handleProbe serves a fixed-size body so clients can time a download over
// the same connection path segment traffic uses.
func (s *Server) handleProbe(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(s.probeBody)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
