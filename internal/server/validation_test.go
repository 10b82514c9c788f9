package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateImageID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"img-0f8fad5b-d9cb-469f-a165-70867728950e", true},
		{"", false},
		{"img-", false},
		{"img-not-a-uuid", false},
		{"gr-ab12", false},
		{"IMG-0f8fad5b-d9cb-469f-a165-70867728950e", false},
		{"0f8fad5b-d9cb-469f-a165-70867728950e", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := validateImageID(tt.id); got != tt.want {
				t.Fatalf("validateImageID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidatePresetName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"thumb", true},
		{"hero_2x", true},
		{"card-lg", true},
		{"9x", true},
		{"", false},
		{"-thumb", false},
		{"thumb.jpg", false},
		{"Thumb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validatePresetName(tt.name); got != tt.want {
				t.Fatalf("validatePresetName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRequireReferenceIDAcceptsNoImageMarker(t *testing.T) {
	mux := http.NewServeMux()
	var got string
	var gotErr error
	mux.HandleFunc("GET /v1/images/{id}/presets/{preset}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = requireReferenceID(r)
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/images/-/presets/thumb", nil))
	if gotErr != nil || got != "" {
		t.Fatalf("expected empty identity, got %q (%v)", got, gotErr)
	}

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/images/bogus/presets/thumb", nil))
	if gotErr == nil {
		t.Fatal("expected malformed id to be rejected")
	}
	if code := errorNumericCode(http.StatusBadRequest, gotErr); code != ErrCodeInvalidID {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidID, code)
	}
}
