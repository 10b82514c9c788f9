package main

import (
	"fmt"
	"os"
	"time"

	"vignette/internal/api"
	"vignette/internal/format"
	"vignette/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	exportFormatter format.Formatter = format.YAMLFormatter{}
)

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeImageList(images []models.ImageRecord) error {
	for _, img := range images {
		if err := writePlain("%s\n", formatImageLine(img)); err != nil {
			return err
		}
	}
	return nil
}

func writeImageDetail(img api.ImageResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", img.ID),
		fmt.Sprintf("media_type: %s", img.MediaType),
		fmt.Sprintf("size: %dx%d", img.Width, img.Height),
		fmt.Sprintf("bytes: %d", img.SizeBytes),
		fmt.Sprintf("sha256: %s", img.SHA256),
		fmt.Sprintf("original_key: %s", img.OriginalKey),
		fmt.Sprintf("created_at: %s", formatTime(img.CreatedAt)),
	}
	if img.Filename != "" {
		lines = append(lines, fmt.Sprintf("filename: %s", img.Filename))
	}
	if img.DeletingAt != nil {
		lines = append(lines, fmt.Sprintf("deleting_at: %s", formatTime(*img.DeletingAt)))
	}
	if len(img.Derivatives) > 0 {
		lines = append(lines, "derivatives:")
		for _, d := range img.Derivatives {
			lines = append(lines, fmt.Sprintf("  - %s: %dx%d %s %s", d.Preset, d.Width, d.Height, d.MediaType, shortFingerprint(d.Fingerprint)))
		}
	}
	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func formatImageLine(img models.ImageRecord) string {
	name := img.Filename
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s  %dx%d  %-10s  %s  %s", img.ID, img.Width, img.Height, img.Format, formatTime(img.CreatedAt), name)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
