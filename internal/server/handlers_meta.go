package server

import (
	"net/http"

	"vignette/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.SchemaVersion()
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	count, err := s.store.CountImages(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.InfoResponse{
		SchemaVersion: version,
		ImageCount:    count,
		Presets:       s.presets.Names(),
		Storage:       s.opts.StorageName,
		Cache:         s.opts.CacheName,
		MissingPolicy: s.opts.MissingPolicy,
	}

	s.writeJSON(w, http.StatusOK, resp)
}
