package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"vignette/internal/api"
	"vignette/internal/derivative"
)

const derivativeCacheControl = "public, max-age=31536000, immutable"

func (s *Server) handleRenderPreset(w http.ResponseWriter, r *http.Request) {
	id, preset, ok := s.renderTargetOrBadRequest(w, r)
	if !ok {
		return
	}

	res, err := s.derivatives.GetOrGenerate(r.Context(), id, preset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set(api.ResultKindHeader, string(res.Kind))

	if res.Kind == derivative.KindPlaceholder {
		w.Header().Set("Cache-Control", "no-store")
		if res.PlaceholderURL == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, res.PlaceholderURL, http.StatusFound)
		return
	}

	if res.Kind == derivative.KindDerivative {
		etag := strconv.Quote(res.Derivative.Fingerprint)
		w.Header().Set("ETag", etag)
		w.Header().Set(api.FingerprintHeader, res.Derivative.Fingerprint)
		w.Header().Set("Cache-Control", derivativeCacheControl)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else {
		// The original stands in until generation finishes.
		w.Header().Set("Cache-Control", "no-store")
	}

	content, err := s.derivatives.Open(r.Context(), res)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", content.MediaType)
	if content.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, content); err != nil {
		s.log().Warn("write derivative", "image_id", id, "preset", preset, "error", err)
	}
}

func (s *Server) handlePresetURL(w http.ResponseWriter, r *http.Request) {
	id, preset, ok := s.renderTargetOrBadRequest(w, r)
	if !ok {
		return
	}

	u, err := s.derivatives.CreateURL(id, preset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.URLResponse{ImageID: id, Preset: preset, URL: u})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageIDOrBadRequest(w, r)
	if !ok {
		return
	}
	preset, err := requirePresetName(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	res, err := s.derivatives.Regenerate(r.Context(), id, preset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	specs := s.presets.All()
	resp := make([]api.PresetResponse, 0, len(specs))
	for _, spec := range specs {
		fp, err := s.presets.Fingerprint(spec.Name)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp = append(resp, api.PresetResponse{PresetSpec: spec, Fingerprint: fp})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	name, err := requirePresetName(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	spec, err := s.presets.Get(name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	fp, err := s.presets.Fingerprint(name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.PresetResponse{PresetSpec: spec, Fingerprint: fp})
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
