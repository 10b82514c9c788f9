package format

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes JSON output.
type JSONFormatter struct{}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(payload)
}

// YAMLFormatter writes YAML output. Payloads use their yaml tags, so a
// presets.File round-trips through presets.LoadFile.
type YAMLFormatter struct {
	Indent int
}

func (f YAMLFormatter) Write(w io.Writer, payload any) error {
	enc := yaml.NewEncoder(w)
	indent := f.Indent
	if indent <= 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(payload); err != nil {
		return err
	}
	return enc.Close()
}
