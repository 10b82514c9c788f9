package main

import (
	"context"
	"errors"
	"net"

	"vignette/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify VIGNETTE_API_TOKEN and VIGNETTE_ADMIN_TOKEN configuration.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; uploads and gc runs are limited per server.")
		case "unsupported_media_type":
			lines = append(lines, "hint: the server accepts the media types listed in uploads.allowed_media_types.")
		}
		if apiErr.Status == 413 {
			lines = append(lines, "hint: the server limit is uploads.max_upload_bytes.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify VIGNETTE_API_URL points to a vignette server.")
		}
		if apiErr.Status == 503 {
			lines = append(lines, "hint: the storage backend is unavailable; retry once it recovers.")
		} else if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase VIGNETTE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a vignette server is running at VIGNETTE_API_URL.",
			"hint: start local server manually with: vignette srv",
			"hint: you can increase VIGNETTE_HTTP_TIMEOUT for slower environments.",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
