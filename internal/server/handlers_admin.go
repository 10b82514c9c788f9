package server

import (
	"fmt"
	"net/http"

	"vignette/internal/images"
)

func (s *Server) handleAdminGC(w http.ResponseWriter, r *http.Request) {
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	batchSize, err := queryIntDefault(r, "batch_size", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if apply && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("apply requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		result, err := s.images.CollectGarbage(r.Context(), images.GCOptions{BatchSize: batchSize, Apply: apply})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	})
}
