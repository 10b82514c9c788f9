package presets

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"vignette/internal/models"
)

// File is the on-disk shape of a presets file.
type File struct {
	Presets      map[string]models.PresetSpec `toml:"presets" yaml:"presets"`
	Placeholders map[string]string            `toml:"placeholders" yaml:"placeholders"`
}

// LoadFile reads presets from a .yaml/.yml or .toml file.
func LoadFile(path string) (File, error) {
	var out File
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read presets file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&out); err != nil {
			return out, fmt.Errorf("parse presets file %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), &out)
		if err != nil {
			return out, fmt.Errorf("parse presets file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return out, fmt.Errorf("parse presets file %s: unknown key %s", path, undecoded[0].String())
		}
	default:
		return out, fmt.Errorf("unsupported presets file extension: %s", filepath.Ext(path))
	}
	return out, nil
}

// Merge combines preset tables. A name defined in more than one source is an
// error so that a typo in one file cannot silently shadow another.
func Merge(sources ...map[string]models.PresetSpec) (map[string]models.PresetSpec, error) {
	out := map[string]models.PresetSpec{}
	for _, src := range sources {
		for name, spec := range src {
			key := strings.ToLower(strings.TrimSpace(name))
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("preset %q defined more than once", key)
			}
			out[key] = spec
		}
	}
	return out, nil
}

// MergePlaceholders combines placeholder tables; later sources win.
func MergePlaceholders(sources ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, src := range sources {
		for name, url := range src {
			out[strings.TrimSpace(name)] = strings.TrimSpace(url)
		}
	}
	return out
}
