// Package manifest rewrites HLS playlist text so every URI a player follows
// routes back through the relay. Without the rewrite a player would resolve
// segment URIs against the origin host directly, bypassing authorization and
// leaking the origin URL.
package manifest

import (
	"bufio"
	"net/url"
	"regexp"
	"strings"
)

// mediaExtensions are the media-segment and sub-playlist suffixes rewritten
// into relay paths. Anything else passes through untouched.
var mediaExtensions = []string{".m3u8", ".ts", ".mp4", ".m4s", ".aac", ".vtt", ".key"}

var absoluteURLPattern = regexp.MustCompile(`https?://[^\s"',]+`)

// IsPlaylistPath reports whether a request path names a playlist document
// rather than a media segment.
func IsPlaylistPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(pathWithoutQuery(p)), ".m3u8")
}

// Rewrite rewrites every segment and sub-playlist reference in an HLS
// playlist into a /relay/{token}/... path. Directive lines keep their shape;
// absolute origin URLs embedded anywhere (including URI attributes) are
// reduced to their path component. Malformed playlists are rewritten
// best-effort: the rewriter only judges line and URL shape, never overall
// playlist syntax.
func Rewrite(body, tok string) string {
	var out strings.Builder
	out.Grow(len(body) + len(body)/4)

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		if !first {
			out.WriteByte('\n')
		}
		first = false
		out.WriteString(rewriteLine(scanner.Text(), tok))
	}
	if strings.HasSuffix(body, "\n") {
		out.WriteByte('\n')
	}
	return out.String()
}

func rewriteLine(line, tok string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed != "" && !strings.HasPrefix(trimmed, "#") && hasMediaExtension(trimmed) {
		return relayPath(trimmed, tok)
	}
	// Directive and metadata lines pass through, except that fully
	// qualified media URLs inside them still get relayed.
	return absoluteURLPattern.ReplaceAllStringFunc(line, func(raw string) string {
		if !hasMediaExtension(raw) {
			return raw
		}
		return relayPath(raw, tok)
	})
}

// relayPath maps a segment reference onto the relay route. Absolute URLs are
// reduced to their origin path so the relay can re-resolve them against the
// cached base URL.
func relayPath(ref, tok string) string {
	target := ref
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		target = strings.TrimPrefix(u.Path, "/")
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
	}
	return "/relay/" + tok + "/" + target
}

func hasMediaExtension(ref string) bool {
	p := strings.ToLower(pathWithoutQuery(ref))
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func pathWithoutQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
