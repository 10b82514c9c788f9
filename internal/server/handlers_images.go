package server

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"vignette/internal/api"
	"vignette/internal/images"
	"vignette/internal/models"
)

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		up, cleanup, err := s.readUpload(w, r)
		if err != nil {
			s.writeErrorReq(w, r, httpStatusFromError(err), err)
			return
		}
		defer cleanup()

		rec, err := s.images.SaveOriginal(r.Context(), up)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.ImageResponse{ImageRecord: rec})
	})
}

// readUpload accepts either a multipart form with a "content" file or a raw
// image body. The raw form takes the filename from the query string.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (images.Upload, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+uploadBodyOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return images.Upload{
			Content:           r.Body,
			Filename:          strings.TrimSpace(r.URL.Query().Get("filename")),
			DeclaredMediaType: mediaType,
		}, noop, nil
	}

	if err := r.ParseMultipartForm(s.opts.MultipartMemory); err != nil {
		return images.Upload{}, noop, classifyMultipartError(err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	file, header, err := r.FormFile("content")
	if err != nil {
		cleanup()
		return images.Upload{}, noop, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}

	up := images.Upload{
		Content:           file,
		Filename:          firstNonEmpty(r.FormValue("filename"), header.Filename),
		DeclaredMediaType: firstNonEmpty(r.FormValue("media_type"), header.Header.Get("Content-Type")),
	}
	return up, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryIntDefault(r, "limit", defaultListLimit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	offset, err := queryIntDefault(r, "offset", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	recs, total, err := s.images.List(r.Context(), limit, offset)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.ImageRecord{}
	}

	s.writeJSON(w, http.StatusOK, api.ImageListResponse{Images: recs, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageIDOrBadRequest(w, r)
	if !ok {
		return
	}

	rec, err := s.images.LoadRecord(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	derivatives, err := s.store.ListDerivatives(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.ImageResponse{ImageRecord: rec, Derivatives: derivatives})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.images.DeleteRecord(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: id, DeletedAt: time.Now().UTC()})
}
