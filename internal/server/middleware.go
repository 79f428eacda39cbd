package server

import (
	"crypto/subtle"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// guard rejects browser requests from pages not served by this machine and, when a
// token is configured, requests without it. /ping stays open for health checks.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !localOrigin(r) {
			logger.WithFields(logger.Fields{
				"origin": r.Header.Get("Origin"),
				"path":   r.URL.Path,
			}).Warn("rejected request from foreign origin")
			writeError(w, http.StatusForbidden, "forbidden_origin", errors.New("origin not allowed"))
			return
		}
		if s.opts.Token != "" && r.URL.Path != "/ping" && !validToken(r, s.opts.Token) {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// localOrigin accepts requests without an Origin header (non-browser clients) and
// those whose Origin host is a loopback name or address.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// validToken reads the token from "Authorization: Bearer" or, for websocket clients
// that cannot set headers, the token query parameter.
func validToken(r *http.Request, want string) bool {
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		got = strings.TrimPrefix(h, "Bearer ")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireJSON answers 415 unless the body is declared as application/json, so a
// cross-site form post cannot reach a handler.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", errors.New("content type must be application/json"))
		return false
	}
	return true
}
