package tuning

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML tuning file and overlays it onto the defaults.
// Keys absent from the file keep their default values. Rule-table rows
// replace the default row as a whole.
func Load(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML content onto the defaults and validates the result
func Parse(data []byte) (*Tuning, error) {
	t := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse tuning file: %w", err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// LoadOrDefault loads path when it is set and returns the defaults otherwise
func LoadOrDefault(path string) (*Tuning, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
