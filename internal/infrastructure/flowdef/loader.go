// Package flowdef loads question flows from YAML or TOML files.
package flowdef

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// LoadFile decodes one flow by file extension and validates it. A flow
// without a name takes the file's base name.
func LoadFile(path string) (domain.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.FlowDefinition{}, fmt.Errorf("read flow %s: %w", path, err)
	}
	def, err := Decode(filepath.Ext(path), data)
	if err != nil {
		return domain.FlowDefinition{}, fmt.Errorf("flow %s: %w", path, err)
	}
	if strings.TrimSpace(def.Name) == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := def.Validate(); err != nil {
		return domain.FlowDefinition{}, fmt.Errorf("flow %s: %w", path, err)
	}
	return def, nil
}

// Decode parses data in the format named by ext (".yaml", ".yml" or ".toml").
// Unknown fields are rejected so typos in a flow fail at load time.
func Decode(ext string, data []byte) (domain.FlowDefinition, error) {
	var def domain.FlowDefinition
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return domain.FlowDefinition{}, domain.WrapError(domain.ErrInvalidConfig, "decode yaml flow", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return domain.FlowDefinition{}, domain.WrapError(domain.ErrInvalidConfig, "decode toml flow", err)
		}
	default:
		return domain.FlowDefinition{}, domain.WrapError(domain.ErrInvalidConfig, "decode flow", fmt.Errorf("unsupported flow format %q", ext))
	}
	return def, nil
}

// LoadPath loads a single flow file or every flow file in a directory,
// in file name order.
func LoadPath(path string) ([]domain.FlowDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat flow path: %w", err)
	}
	if !info.IsDir() {
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []domain.FlowDefinition{def}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read flow dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".toml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]domain.FlowDefinition, 0, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}
