package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Flags holds the raw CLI flag values, parsed with cobra/pflag
// (grounded on tessro-fab's internal/cli/root.go and its go.mod's
// github.com/spf13/cobra dependency). --backend uses pflag.StringArray
// rather than StringSlice so that a value containing a comma is never
// split — each --backend occurrence is exactly one backend spec.
type Flags struct {
	ConfigFile string
	Bind       string
	Backend    []string
	Default    string
	Script     []string
}

// BindFlags registers yprox's flags on cmd, mirroring the original
// implementation's clap Args (original_source/src/config.rs).
// --backend and --script use pflag's StringArray, not StringSlice, so a
// value containing a comma is never split: each flag occurrence is
// exactly one backend spec or script path.
func BindFlags(cmd *cobra.Command, f *Flags) {
	cmd.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "full path to the configuration file in toml format")
	cmd.Flags().StringVar(&f.Bind, "bind", "", "bind address in the ip:port format")
	cmd.Flags().StringArrayVar(&f.Backend, "backend", nil, "backend address, as ip:port or name=ip:port; may be repeated")
	cmd.Flags().StringVar(&f.Default, "default", "", "name of the backend whose responses are sent to the client")
	cmd.Flags().StringArrayVar(&f.Script, "script", nil, "path to a hook script file; may be repeated")
}

// Resolve turns parsed Flags into a Config, following the original
// implementation's precedence (original_source/src/config.rs's
// `parse`): an explicit --config wins; otherwise, if no --backend was
// given and yprox.toml exists in the working directory, that file is
// used; otherwise --backend/--bind are required.
func Resolve(f *Flags) (*Config, error) {
	configFile := f.ConfigFile
	if configFile == "" && len(f.Backend) == 0 && DefaultConfigFileExists() {
		configFile = DefaultConfigFile
	}

	if configFile != "" {
		return LoadFile(configFile)
	}

	if len(f.Backend) == 0 {
		return nil, fmt.Errorf("you need to provide --backend, --config, or create a %s file", DefaultConfigFile)
	}
	if f.Bind == "" {
		return nil, fmt.Errorf("--bind is required when --backend is given")
	}

	backends, err := parseBackendFlags(f.Backend)
	if err != nil {
		return nil, err
	}

	scripts, err := readScriptFiles(f.Script)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Bind:           f.Bind,
		Backends:       backends,
		DefaultBackend: f.Default,
		Scripts:        scripts,
	}
	return cfg, cfg.validate()
}

// readScriptFiles loads each --script flag's file into a source body, so
// Config.Scripts always holds source bodies regardless of whether they
// came from --script or from a TOML `scripts` entry (spec.md §6:
// --script "loads one script file" rather than taking a body inline).
func readScriptFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	scripts := make([]string, len(paths))
	for i, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", path, err)
		}
		scripts[i] = string(src)
	}
	return scripts, nil
}

// parseBackendFlags parses the --backend flag's repeated values. Each
// entry is either `addr` (anonymous, named positionally as
// `backend<n>`) or `name=addr` (named) — the mix is allowed, and
// duplicate names after resolution are rejected by Config.validate,
// which is the redesigned, stricter behavior spec.md calls for in place
// of the original implementation's silent-overwrite IndexMap insert.
func parseBackendFlags(raw []string) ([]TargetEntry, error) {
	entries := make([]TargetEntry, len(raw))
	for i, spec := range raw {
		name := fmt.Sprintf("backend%d", i+1)
		addr := spec
		if idx := strings.IndexByte(spec, '='); idx >= 0 {
			name = spec[:idx]
			addr = spec[idx+1:]
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("can't parse backend %q: %w", spec, err)
		}
		entries[i] = TargetEntry{Name: name, Addr: addr}
	}
	return entries, nil
}
