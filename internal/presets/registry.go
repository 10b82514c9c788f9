// Package presets holds the immutable table of named derivative recipes.
package presets

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"vignette/internal/models"
)

const (
	maxDimension = 8192
	// Bump when encoder settings change so old derivatives go stale.
	encoderRevision = 1
)

var presetNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// Registry is the read-only preset table. It is safe for concurrent use
// without locking because it never changes after construction.
type Registry struct {
	specs        map[string]models.PresetSpec
	fingerprints map[string]string
	names        []string
}

// New validates specs and builds a registry. Spec names come from the map
// keys. holders lists known placeholder names; when nil, placeholder
// references are not checked.
func New(specs map[string]models.PresetSpec, holders map[string]string) (*Registry, error) {
	r := &Registry{
		specs:        make(map[string]models.PresetSpec, len(specs)),
		fingerprints: make(map[string]string, len(specs)),
		names:        make([]string, 0, len(specs)),
	}

	var problems []string
	for rawName, spec := range specs {
		name := strings.ToLower(strings.TrimSpace(rawName))
		normalized, err := normalize(name, spec, holders)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if _, dup := r.specs[name]; dup {
			problems = append(problems, fmt.Sprintf("preset %q: defined more than once", name))
			continue
		}
		r.specs[name] = normalized
		r.fingerprints[name] = Fingerprint(normalized)
		r.names = append(r.names, name)
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid presets: %s", strings.Join(problems, "; "))
	}

	sort.Strings(r.names)
	return r, nil
}

// Get returns the preset named name.
func (r *Registry) Get(name string) (models.PresetSpec, error) {
	if r == nil {
		return models.PresetSpec{}, models.UnknownPreset(name)
	}
	spec, ok := r.specs[name]
	if !ok {
		return models.PresetSpec{}, models.UnknownPreset(name)
	}
	return spec, nil
}

// Fingerprint returns the cached fingerprint of a registered preset.
func (r *Registry) Fingerprint(name string) (string, error) {
	if r == nil {
		return "", models.UnknownPreset(name)
	}
	fp, ok := r.fingerprints[name]
	if !ok {
		return "", models.UnknownPreset(name)
	}
	return fp, nil
}

// Names returns the registered preset names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every preset in name order.
func (r *Registry) All() []models.PresetSpec {
	if r == nil {
		return nil
	}
	out := make([]models.PresetSpec, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.specs[name])
	}
	return out
}

// Fingerprints returns preset name to fingerprint for every preset.
func (r *Registry) Fingerprints() map[string]string {
	if r == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(r.fingerprints))
	for name, fp := range r.fingerprints {
		out[name] = fp
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Fingerprint hashes every parameter that affects derivative bytes.
func Fingerprint(spec models.PresetSpec) string {
	canonical := fmt.Sprintf("v%d|w=%d|h=%d|fit=%s|fmt=%s|q=%d",
		encoderRevision, spec.Width, spec.Height, spec.Fit, spec.Format, spec.Quality)
	sum := blake2b.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func normalize(name string, spec models.PresetSpec, holders map[string]string) (models.PresetSpec, error) {
	if !presetNamePattern.MatchString(name) {
		return spec, fmt.Errorf("preset %q: name must match %s", name, presetNamePattern.String())
	}
	spec.Name = name

	if spec.Width <= 0 || spec.Height <= 0 {
		return spec, fmt.Errorf("preset %q: width and height must be positive", name)
	}
	if spec.Width > maxDimension || spec.Height > maxDimension {
		return spec, fmt.Errorf("preset %q: dimensions exceed %d", name, maxDimension)
	}

	if spec.Fit == "" {
		spec.Fit = models.FitCover
	}
	fit, err := models.ParseFitMode(string(spec.Fit))
	if err != nil {
		return spec, fmt.Errorf("preset %q: %w", name, err)
	}
	spec.Fit = fit

	format, err := models.ParseFormat(string(spec.Format))
	if err != nil {
		return spec, fmt.Errorf("preset %q: %w", name, err)
	}
	spec.Format = format

	if spec.Quality < 0 || spec.Quality > 100 {
		return spec, fmt.Errorf("preset %q: quality must be between 0 and 100", name)
	}

	spec.Holder = strings.TrimSpace(spec.Holder)
	if spec.Holder != "" && holders != nil {
		if _, ok := holders[spec.Holder]; !ok {
			return spec, fmt.Errorf("preset %q: unknown placeholder %q", name, spec.Holder)
		}
	}
	return spec, nil
}
