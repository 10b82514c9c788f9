package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Originals.
	mux.HandleFunc("POST /v1/images", s.handleUploadImage)
	mux.HandleFunc("GET /v1/images", s.handleListImages)
	mux.HandleFunc("GET /v1/images/{id}", s.handleGetImage)
	mux.HandleFunc("DELETE /v1/images/{id}", s.handleDeleteImage)

	// Derivatives.
	mux.HandleFunc("GET /v1/images/{id}/presets/{preset}", s.handleRenderPreset)
	mux.HandleFunc("GET /v1/images/{id}/presets/{preset}/url", s.handlePresetURL)
	mux.HandleFunc("POST /v1/images/{id}/presets/{preset}/regenerate", s.handleRegenerate)

	// Presets.
	mux.HandleFunc("GET /v1/presets", s.handleListPresets)
	mux.HandleFunc("GET /v1/presets/{preset}", s.handleGetPreset)

	// Admin.
	mux.HandleFunc("POST /v1/admin/gc", s.handleAdminGC)

	return mux
}
