// Package config resolves yprox's run-time configuration, either from a
// TOML file or from CLI flags, into a Config ready for cmd/yprox to wire
// into the proxy. Grounded on the original implementation's
// original_source/src/config.rs (same resolution precedence and
// Backends shape) and on tessro-fab's internal/config/global.go for the
// BurntSushi/toml decoding idiom.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/fcoury/yprox/internal/proxy"
)

const defaultConfigFile = "yprox.toml"

// Config is the fully resolved, validated set of options yprox runs
// with. Scripts holds hook script *source bodies*, already resolved
// from whichever surface they came from: a TOML `scripts` entry is a
// source body verbatim, and a `--script <path>` flag is read from disk
// during Resolve so both end up in the same shape (spec.md §6:
// `scripts` is "a list of strings … script source bodies", while
// `--script` "loads one script file").
type Config struct {
	Bind           string
	Backends       []TargetEntry
	DefaultBackend string
	Scripts        []string
}

// TargetEntry is one named backend, in configuration order.
type TargetEntry struct {
	Name string
	Addr string
}

// Targets converts the resolved backend list to proxy.TargetSpec values
// for internal/proxy, preserving configuration order.
func (c *Config) Targets() []proxy.TargetSpec {
	specs := make([]proxy.TargetSpec, len(c.Backends))
	for i, b := range c.Backends {
		specs[i] = proxy.TargetSpec{Name: b.Name, Addr: b.Addr}
	}
	return specs
}

// Designated returns the name of the backend whose responses are
// streamed back to clients: the configured default, or the first
// backend when none is set (original_source/src/config.rs's
// "if not specified, the first backend will be used").
func (c *Config) Designated() string {
	if c.DefaultBackend != "" {
		return c.DefaultBackend
	}
	if len(c.Backends) > 0 {
		return c.Backends[0].Name
	}
	return ""
}

// fileConfig is the TOML file's on-disk shape. Backends is decoded as a
// toml.Primitive because the same key may hold either an array of
// strings (anonymous) or a table of name = "addr" pairs (named); see
// decodeBackends.
type fileConfig struct {
	Bind           string         `toml:"bind"`
	Backends       toml.Primitive `toml:"backends"`
	DefaultBackend string         `toml:"default_backend"`
	Scripts        []string       `toml:"scripts"`
}

// LoadFile parses a yprox.toml-style configuration file.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	backends, err := decodeBackends(meta, fc.Backends)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := &Config{
		Bind:           fc.Bind,
		Backends:       backends,
		DefaultBackend: fc.DefaultBackend,
		Scripts:        fc.Scripts,
	}
	return cfg, cfg.validate()
}

// decodeBackends recovers the declaration order of a `backends` TOML
// table (Go's map decoding loses it) via MetaData.Keys(), which is the
// BurntSushi/toml idiom for ordered-table decoding. This stands in for
// the original implementation's IndexMap-backed Backends::Named variant
// (original_source/src/config.rs).
func decodeBackends(meta toml.MetaData, prim toml.Primitive) ([]TargetEntry, error) {
	// Try array-of-strings form first (Backends::Anon).
	var anon []string
	if err := meta.PrimitiveDecode(prim, &anon); err == nil && len(anon) > 0 {
		entries := make([]TargetEntry, len(anon))
		for i, addr := range anon {
			entries[i] = TargetEntry{Name: fmt.Sprintf("backend%d", i+1), Addr: addr}
		}
		return entries, nil
	}

	// Fall back to named-table form (Backends::Named), walking
	// meta.Keys() in declaration order to find entries under
	// "backends.<name>".
	var named map[string]string
	if err := meta.PrimitiveDecode(prim, &named); err != nil {
		return nil, fmt.Errorf("backends must be an array of addresses or a table of name = address pairs: %w", err)
	}

	var order []string
	seen := make(map[string]bool)
	for _, key := range meta.Keys() {
		parts := key
		if len(parts) == 2 && parts[0] == "backends" {
			name := parts[1]
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}

	entries := make([]TargetEntry, 0, len(named))
	for _, name := range order {
		if addr, ok := named[name]; ok {
			entries = append(entries, TargetEntry{Name: name, Addr: addr})
		}
	}
	return entries, nil
}

func (c *Config) validate() error {
	if c.Bind == "" {
		return fmt.Errorf("bind address is required")
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		if _, _, err := net.SplitHostPort(b.Addr); err != nil {
			return fmt.Errorf("invalid backend address %q for %q: %w", b.Addr, b.Name, err)
		}
	}

	if c.DefaultBackend != "" && !seen[c.DefaultBackend] {
		return fmt.Errorf("default_backend %q does not match any configured backend", c.DefaultBackend)
	}
	return nil
}

// DefaultConfigFileExists reports whether yprox.toml exists in the
// current directory, mirroring the original implementation's implicit
// config discovery (original_source/src/config.rs's `Path::new(
// "yprox.toml")`).
func DefaultConfigFileExists() bool {
	_, err := os.Stat(defaultConfigFile)
	return err == nil
}

// DefaultConfigFile is the conventional config file name yprox looks
// for when no --config and no --backend flags are given.
const DefaultConfigFile = defaultConfigFile
