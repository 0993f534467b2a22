package api

import (
	"net/http"
	"strings"
)

// limitUploadSize caps the request body at the configured upload size
// plus some room for the other multipart fields.
func (s *Server) limitUploadSize(next http.Handler) http.Handler {
	limit := s.app.Config.MaxUploadBytes() + 1<<20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// baseURL is the configured public URL, or the URL the request reached
// us on when none is configured.
func (s *Server) baseURL(r *http.Request) string {
	if u := s.app.Config.PublicURL; u != "" {
		return u
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + r.Host
}
