// Package manifest handles bridge.toml load-time configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file the bridge looks for.
const FileName = "bridge.toml"

// Manifest represents a bridge.toml configuration.
type Manifest struct {
	Bridge  Bridge            `toml:"bridge"`
	Plugins map[string]Plugin `toml:"plugins"`

	// Dir is the directory containing the bridge.toml file (set at load time).
	Dir string `toml:"-"`
}

// Bridge contains bridge-wide settings.
type Bridge struct {
	// DefaultTimeout bounds blocking dispatch waits. Zero keeps the
	// built-in default.
	DefaultTimeout duration `toml:"default-timeout"`
}

// Plugin configures one plugin load.
type Plugin struct {
	// Namespace is the script-visible root name; defaults to the
	// plugin's key in the [plugins] table.
	Namespace string `toml:"namespace"`

	// Thread selects the execution context: "shared" (default) or
	// "dedicated".
	Thread string `toml:"thread"`
}

// duration wraps time.Duration for TOML string values like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// DefaultTimeout returns the configured dispatch timeout.
func (m *Manifest) DefaultTimeout() time.Duration {
	return time.Duration(m.Bridge.DefaultTimeout)
}

// Load parses a bridge.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults and validation
	for key, p := range m.Plugins {
		if p.Namespace == "" {
			p.Namespace = key
		}
		switch p.Thread {
		case "":
			p.Thread = "shared"
		case "shared", "dedicated":
		default:
			return nil, fmt.Errorf("%s: plugin %q has invalid thread mode %q (want shared or dedicated)",
				path, key, p.Thread)
		}
		m.Plugins[key] = p
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a bridge.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}
