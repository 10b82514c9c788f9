package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"vignette/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure a vignette server is running at VIGNETTE_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start local server manually with: vignette srv") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify VIGNETTE_API_URL points to a vignette server.") {
		t.Fatalf("expected api-url guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIAuthGuidance(t *testing.T) {
	err := &api.APIError{Status: 401, Code: "unauthorized", Message: "unauthorized"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify VIGNETTE_API_TOKEN and VIGNETTE_ADMIN_TOKEN configuration.") {
		t.Fatalf("expected auth guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIStatusGuidance(t *testing.T) {
	tests := []struct {
		name string
		err  *api.APIError
		want string
	}{
		{
			name: "internal",
			err:  &api.APIError{Status: 500, Code: "internal", Message: "internal error"},
			want: "hint: server returned an internal error; check server logs for details.",
		},
		{
			name: "storage unavailable",
			err:  &api.APIError{Status: 503, Code: "unavailable", Message: "internal error"},
			want: "hint: the storage backend is unavailable; retry once it recovers.",
		},
		{
			name: "too large",
			err:  &api.APIError{Status: 413, Code: "invalid_argument", Message: "request body too large"},
			want: "hint: the server limit is uploads.max_upload_bytes.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := formatCLIError(tt.err)
			if !containsLine(lines, tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, lines)
			}
		})
	}
}

func TestFormatCLIError_Timeout(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("get info: %w", context.DeadlineExceeded))
	if len(lines) != 2 || lines[1] != "hint: request timed out; check server health or increase VIGNETTE_HTTP_TIMEOUT." {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestCanAutostart(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{url: "http://127.0.0.1:7480", want: true},
		{url: "http://localhost:7480", want: true},
		{url: "http://[::1]:7480", want: true},
		{url: "https://images.example.com", want: false},
		{url: "127.0.0.1:7480", want: false},
	}
	for _, tt := range tests {
		if got := canAutostart(tt.url); got != tt.want {
			t.Fatalf("canAutostart(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	t.Setenv(noAutostartEnvKey, "1")
	if canAutostart("http://127.0.0.1:7480") {
		t.Fatal("expected autostart to be disabled by env")
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
