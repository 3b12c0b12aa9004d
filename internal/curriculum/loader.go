package curriculum

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCurriculum []byte

// Load reads and validates a curriculum definition file. An empty path loads
// the embedded default curriculum.
func Load(path string) (*Definitions, error) {
	if path == "" {
		return LoadFromReader(bytes.NewReader(defaultCurriculum))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open curriculum file %q: %w", path, err)
	}
	defer f.Close()

	defs, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("load curriculum file %q: %w", path, err)
	}
	return defs, nil
}

// LoadFromReader parses a curriculum definition from r. Unknown YAML fields
// are rejected so typos in definition files surface at startup instead of
// silently producing empty content.
func LoadFromReader(r io.Reader) (*Definitions, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs Definitions
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("parse curriculum YAML: %w", err)
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Default returns the embedded curriculum. It panics on parse failure, which
// can only happen if the embedded file itself is broken at build time.
func Default() *Definitions {
	defs, err := LoadFromReader(bytes.NewReader(defaultCurriculum))
	if err != nil {
		panic(fmt.Sprintf("embedded curriculum is invalid: %v", err))
	}
	return defs
}
