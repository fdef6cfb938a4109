package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// LoadProfile reads a profile file and overlays it on cfg. The format is
// chosen by extension: .yaml/.yml, .toml or .json. Keys absent from the
// file keep their current values.
func LoadProfile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}
	if err := DecodeProfile(filepath.Ext(path), data, cfg); err != nil {
		return fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return nil
}

// DecodeProfile decodes profile data of the given extension into cfg.
func DecodeProfile(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	case "toml":
		return toml.Unmarshal(data, cfg)
	case "json":
		return sonic.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported profile format %q", ext)
	}
}
