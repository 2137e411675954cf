package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/famomatic/streamgate/internal/catalog"
	"github.com/famomatic/streamgate/internal/history"
	"github.com/famomatic/streamgate/internal/manifest"
	"github.com/famomatic/streamgate/internal/resolver"
	"github.com/famomatic/streamgate/internal/token"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// handleToken mints a capability token for an authenticated, entitled caller.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	userID, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	contentType, err := catalog.ParseContentType(r.PathValue("contentType"))
	if err != nil {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	ref := catalog.ContentRef{Type: contentType, ID: id}

	premium, err := s.catalog.IsPremium(r.Context(), ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "content not found")
			return
		}
		logger.Error("premium lookup failed", "content", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if premium {
		ent, err := s.catalog.Entitlement(r.Context(), userID)
		if err != nil {
			logger.Error("entitlement lookup failed", "user", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "catalog unavailable")
			return
		}
		if !ent.IsPremium {
			writeError(w, http.StatusForbidden, "premium entitlement required")
			return
		}
	}

	tok, err := s.codec.Issue(ref, userID)
	if err != nil {
		logger.Error("token issue failed", "content", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	sources, err := s.resolver.SourceCount(r.Context(), ref)
	if err != nil {
		// The item exists but has nothing playable; surface that now
		// rather than on the first relay request.
		writeError(w, http.StatusNotFound, "stream source not found")
		return
	}
	logger.Debug("token issued", "content", ref.String(), "user", userID)
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "sources": sources})
}

// handleRelay validates the token, resolves the origin and relays either a
// rewritten playlist or raw bytes. It never retries or fails over; only the
// client can judge whether a fatal playback error occurred.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	tok := r.PathValue("token")
	if tok == "" {
		writeError(w, http.StatusForbidden, "missing token")
		return
	}
	payload, err := s.codec.Validate(tok)
	if err != nil {
		// BadSignature vs Expired stays in the logs only; the response
		// must not reveal which check failed.
		logger.Warn("token rejected", "reason", tokenReason(err))
		writeError(w, http.StatusForbidden, "invalid token")
		return
	}
	ref := payload.Ref()
	rest := r.PathValue("rest")

	// A top-level request may carry a failover rank chosen by the client;
	// segment requests always follow the cached election so a whole
	// playback session sticks to one origin.
	var resolution resolver.Resolution
	if src := r.URL.Query().Get("src"); rest == "" && src != "" {
		index, convErr := strconv.Atoi(src)
		if convErr != nil || index < 0 {
			writeError(w, http.StatusNotFound, "stream source not found")
			return
		}
		resolution, err = s.resolver.ResolveAt(r.Context(), ref, index)
	} else {
		resolution, err = s.resolver.Resolve(r.Context(), ref)
	}
	if err != nil {
		if errors.Is(err, resolver.ErrNoSources) {
			writeError(w, http.StatusNotFound, "stream source not found")
			return
		}
		logger.Error("source resolution failed", "content", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "source resolution failed")
		return
	}

	// One playback event per stream start, not per segment.
	if rest == "" {
		s.recordPlaybackStart(payload)
	}

	restRef := rest
	if restRef != "" && r.URL.RawQuery != "" {
		restRef += "?" + r.URL.RawQuery
	}
	upstreamURL, err := upstreamFor(resolution, restRef)
	if err != nil {
		logger.Error("upstream url", "content", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "error proxying stream content")
		return
	}

	resp, err := s.fetchUpstream(r, upstreamURL)
	if err != nil {
		logger.Error("upstream fetch failed", "content", ref.String(), "url", upstreamURL, "error", err)
		writeError(w, http.StatusInternalServerError, "error proxying stream content")
		return
	}
	defer resp.Body.Close()

	requestPath := rest
	if requestPath == "" {
		requestPath = upstreamURL
	}
	if resolution.Format.IsPlaylist() && manifest.IsPlaylistPath(requestPath) {
		s.relayPlaylist(w, resp, tok, logger)
		return
	}
	s.relayBytes(w, r, resp)
}

func (s *Server) relayPlaylist(w http.ResponseWriter, resp *http.Response, tok string, logger *slog.Logger) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("read upstream manifest", "error", err)
		writeError(w, http.StatusInternalServerError, "error proxying stream manifest")
		return
	}
	rewritten := manifest.Rewrite(string(body), tok)
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
}

func (s *Server) relayBytes(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	for _, name := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// The client went away or the origin broke mid-stream; either
		// way the response is already committed.
		s.requestLogger(r).Debug("relay copy aborted", "error", err)
	}
}

// fetchUpstream performs one origin fetch tied to the client request's
// context: a client disconnect cancels the upstream transfer instead of
// draining it.
func (s *Server) fetchUpstream(r *http.Request, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	// Range forwarding keeps seek requests cheap for mp4/webm relays.
	if v := r.Header.Get("Range"); v != "" {
		req.Header.Set("Range", v)
	}
	resp, err := s.upstream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return resp, nil
}

// recordPlaybackStart dispatches the watch-history write without blocking
// the response path. Failures are logged and swallowed.
func (s *Server) recordPlaybackStart(payload token.Payload) {
	ev := history.Event{
		UserID:      payload.UserID,
		ContentType: payload.ContentType,
		ContentID:   payload.ContentID,
		StartedAt:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout)
		defer cancel()
		if err := s.history.RecordPlaybackStart(ctx, ev); err != nil {
			s.logger.Warn("record playback start failed",
				"user", ev.UserID,
				"content", fmt.Sprintf("%s/%d", ev.ContentType, ev.ContentID),
				"error", err)
		}
	}()
}

// upstreamFor maps a relay request back onto the true origin. An empty rest
// means the top-level manifest or direct file; anything else resolves
// against the elected base URL per RFC 3986.
func upstreamFor(res resolver.Resolution, rest string) (string, error) {
	base, err := url.Parse(res.URL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if rest == "" {
		return base.String(), nil
	}
	rel, err := url.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("parse relay path: %w", err)
	}
	return base.ResolveReference(rel).String(), nil
}

func tokenReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "Expired"
	case errors.Is(err, token.ErrBadSignature):
		return "BadSignature"
	default:
		return "Malformed"
	}
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return s.logger.With("request", uuid.NewString()[:8], "path", r.URL.Path)
}

func probeBody(size int) []byte {
	body := make([]byte, size)
	// Random bytes defeat transparent compression between client and
	// relay, which would skew throughput measurements.
	_, _ = rand.Read(body)
	return body
}
