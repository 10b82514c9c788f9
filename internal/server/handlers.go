package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"vignette/internal/api"
	"vignette/internal/models"
)

const (
	defaultListLimit = 50
	// Multipart framing on top of the upload itself.
	uploadBodyOverhead = 1 << 20 // 1 MiB
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

// coreError maps image core failures onto API errors by kind.
func coreError(err error) error {
	var existing apiError
	if errors.As(err, &existing) {
		return existing
	}
	var coreErr *models.Error
	if !errors.As(err, &coreErr) {
		return internalError(err)
	}

	switch coreErr.Kind {
	case models.KindInvalidImage:
		return badRequestCode(err, ErrCodeInvalidImage)
	case models.KindUnsupportedFormat:
		return makeAPIError(http.StatusUnsupportedMediaType, "unsupported_media_type", ErrCodeUnsupportedFormat, err)
	case models.KindNotFound:
		return notFoundCode(err, ErrCodeImageNotFound)
	case models.KindUnknownPreset:
		return notFoundCode(err, ErrCodeUnknownPreset)
	case models.KindTransform:
		return makeAPIError(http.StatusUnprocessableEntity, "unprocessable", ErrCodeTransformFailed, err)
	case models.KindDeletion:
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeDeletionFailed, err)
	case models.KindStorageIO:
		if coreErr.Transient {
			return makeAPIError(http.StatusServiceUnavailable, "unavailable", ErrCodeStorageUnavailable, err)
		}
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStorageFailure, err)
	default:
		return internalError(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// writeServiceError writes an error returned by the image core.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = coreError(err)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) imageIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := requireImageID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

// renderTargetOrBadRequest reads {id} and {preset} for derivative routes,
// where the id may be the empty identity marker.
func (s *Server) renderTargetOrBadRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id, err := requireReferenceID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", "", false
	}
	preset, err := requirePresetName(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", "", false
	}
	return id, preset, true
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return makeAPIError(http.StatusRequestEntityTooLarge, "invalid_argument", ErrCodeRequestTooLarge, fmt.Errorf("request body too large"))
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func queryIntDefault(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	if parsed < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
