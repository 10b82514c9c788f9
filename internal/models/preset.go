package models

import (
	"fmt"
	"strings"
)

// FitMode controls how a source image is mapped onto preset dimensions.
type FitMode string

const (
	// FitCover fills the box and crops the overflow around the center.
	FitCover FitMode = "cover"
	// FitContain scales to fit inside the box, preserving aspect ratio.
	FitContain FitMode = "contain"
	// FitStretch resizes to the exact box, ignoring aspect ratio.
	FitStretch FitMode = "stretch"
)

// Format is an encoded image format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

var validFitModes = map[FitMode]struct{}{
	FitCover:   {},
	FitContain: {},
	FitStretch: {},
}

var formatMediaTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
}

var formatExtensions = map[Format]string{
	FormatJPEG: "jpg",
	FormatPNG:  "png",
	FormatGIF:  "gif",
	FormatWebP: "webp",
}

// PresetSpec is a named, deterministic transformation recipe.
type PresetSpec struct {
	Name    string  `json:"name" toml:"-" yaml:"-"`
	Width   int     `json:"width" toml:"width" yaml:"width"`
	Height  int     `json:"height" toml:"height" yaml:"height"`
	Fit     FitMode `json:"fit" toml:"fit" yaml:"fit"`
	Format  Format  `json:"format" toml:"format" yaml:"format"`
	Quality int     `json:"quality,omitempty" toml:"quality" yaml:"quality"`
	Holder  string  `json:"placeholder,omitempty" toml:"placeholder" yaml:"placeholder"`
}

// MediaType returns the media type produced by the preset.
func (p PresetSpec) MediaType() string {
	return p.Format.MediaType()
}

func ParseFitMode(raw string) (FitMode, error) {
	value := FitMode(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("fit is required")
	}
	if _, ok := validFitModes[value]; !ok {
		return "", fmt.Errorf("invalid fit: %s", value)
	}
	return value, nil
}

// ParseFormat accepts format names and the common "jpg" alias.
func ParseFormat(raw string) (Format, error) {
	value := Format(strings.ToLower(strings.TrimSpace(raw)))
	if value == "jpg" {
		value = FormatJPEG
	}
	if value == "" {
		return "", fmt.Errorf("format is required")
	}
	if _, ok := formatMediaTypes[value]; !ok {
		return "", fmt.Errorf("invalid format: %s", value)
	}
	return value, nil
}

// FormatFromMediaType maps an image media type back to its format.
func FormatFromMediaType(mediaType string) (Format, bool) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for format, mt := range formatMediaTypes {
		if mt == mediaType {
			return format, true
		}
	}
	return "", false
}

func (f Format) MediaType() string {
	return formatMediaTypes[f]
}

func (f Format) Extension() string {
	if ext, ok := formatExtensions[f]; ok {
		return ext
	}
	return "bin"
}
