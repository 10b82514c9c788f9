package server

import (
	"fmt"
	"net/http"
	"strings"

	"vignette/internal/auth"
)

const adminPathPrefix = "/v1/admin/"

// withAuth enforces the optional API and admin tokens. Health checks and
// derivative reads stay public so CreateURL links work in browsers.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || isPublicRead(r) {
			next.ServeHTTP(w, r)
			return
		}

		if s.adminToken != "" && strings.HasPrefix(r.URL.Path, adminPathPrefix) {
			if !auth.Verify(s.adminToken, r.Header.Get("X-Admin-Token")) {
				s.writeErrorReq(w, r, http.StatusForbidden, apiError{
					status:  http.StatusForbidden,
					code:    "forbidden",
					errCode: ErrCodeForbidden,
					err:     fmt.Errorf("admin token required"),
				})
				return
			}
		}

		if s.apiToken != "" && !auth.Verify(s.apiToken, auth.BearerToken(r.Header.Get("Authorization"))) {
			s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("unauthorized"),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isPublicRead matches GET and HEAD on /v1/images/{id}/presets/{preset}.
func isPublicRead(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	return len(parts) == 5 && parts[0] == "v1" && parts[1] == "images" && parts[3] == "presets"
}
