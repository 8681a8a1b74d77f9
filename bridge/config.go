package bridge

import (
	"fmt"

	"github.com/norgard/gangplank/manifest"
)

// WithManifest applies bridge-wide settings from a loaded manifest.
func WithManifest(m *manifest.Manifest) Option {
	return func(b *Bridge) {
		if m != nil && m.DefaultTimeout() > 0 {
			b.timeout = m.DefaultTimeout()
		}
	}
}

// RegisterConfigured loads a plugin using the namespace and threading
// mode configured under the given key in the manifest.
func (b *Bridge) RegisterConfigured(plugin any, m *manifest.Manifest, key string) (*Instance, error) {
	cfg, ok := m.Plugins[key]
	if !ok {
		return nil, fmt.Errorf("bridge: no plugin %q in manifest", key)
	}
	opts := RegisterOptions{Thread: ThreadShared}
	if cfg.Thread == "dedicated" {
		opts.Thread = ThreadDedicated
	}
	return b.Register(plugin, cfg.Namespace, opts)
}
