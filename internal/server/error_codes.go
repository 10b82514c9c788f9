package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeInvalidPreset     = 1005
	ErrCodeMissingRequired   = 1009
	ErrCodeInvalidImage      = 1020
	ErrCodeUnsupportedFormat = 1021

	// Domain state (2xxx)
	ErrCodeImageNotFound   = 2001
	ErrCodeUnknownPreset   = 2002
	ErrCodeTransformFailed = 2201

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStoreFailure       = 4002
	ErrCodeDeletionFailed     = 4003
	ErrCodeStorageFailure     = 4004
	ErrCodeStorageUnavailable = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeImageNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 415:
		return ErrCodeUnsupportedFormat
	case 422:
		return ErrCodeTransformFailed
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 503:
		return ErrCodeStorageUnavailable
	default:
		return 0
	}
}
