package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"vignette/internal/store"
)

// noImageID addresses the "no image" state in derivative routes.
const noImageID = "-"

var presetNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

func validateImageID(id string) bool {
	return store.ValidImageID(id)
}

func validatePresetName(name string) bool {
	return presetNameRegex.MatchString(name)
}

func requireImageID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateImageID(id) {
		return "", badRequestCode(fmt.Errorf("invalid id"), ErrCodeInvalidID)
	}
	return id, nil
}

// requireReferenceID is requireImageID that also accepts the empty identity
// marker, returned as "".
func requireReferenceID(r *http.Request) (string, error) {
	if strings.TrimSpace(r.PathValue("id")) == noImageID {
		return "", nil
	}
	return requireImageID(r)
}

func requirePresetName(r *http.Request) (string, error) {
	name := strings.ToLower(strings.TrimSpace(r.PathValue("preset")))
	if !validatePresetName(name) {
		return "", badRequestCode(fmt.Errorf("invalid preset name"), ErrCodeInvalidPreset)
	}
	return name, nil
}
