package identity

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is the shared bucket for requests with no resolvable client IP.
// Rate limits and fraud scores collapse across all such clients; that is a
// known weakness of forwarded-IP identification, not something we hide.
const Unknown = "unknown"

// Identity carries the per-request signals the admission heuristic scores:
// the best-effort client IP plus the headers and callback query flags the
// upstream verification platform sends back.
type Identity struct {
	IP        string
	UserAgent string
	Referer   string
	Verified  bool
	Platform  string
}

// FromRequest derives the request identity. It never fails; a request
// without any usable address lands in the Unknown bucket.
func FromRequest(r *http.Request) Identity {
	query := r.URL.Query()
	return Identity{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Verified:  query.Get("verified") == "true",
		Platform:  query.Get("platform"),
	}
}

// clientIP resolves the client address the way the original serverless
// deployment saw it: X-Forwarded-For first entry, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		return Unknown
	}
	return ip
}
