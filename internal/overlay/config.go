package overlay

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/dmweis/zenoh-tailscale/internal/endpoint"
)

// DefaultMode is the Zenoh mode of a defaulted configuration.
const DefaultMode = "peer"

// Config is a Zenoh session configuration. The tree is kept opaque apart
// from the few keys this package edits: mode, listen.endpoints,
// connect.endpoints and scouting.
type Config struct {
	tree map[string]any
}

// Scouting holds the scouting options forced onto every configuration.
type Scouting struct {
	// MultihopGossip lets gossip scouting propagate past direct neighbours.
	MultihopGossip bool
	// DisableMulticast turns multicast scouting off. Mesh VPNs rarely carry
	// multicast, so it only adds noise there.
	DisableMulticast bool
}

// DefaultScouting returns the scouting options used when none are given.
func DefaultScouting() Scouting {
	return Scouting{MultihopGossip: true}
}

// Default returns the library default configuration.
func Default() *Config {
	return &Config{tree: map[string]any{"mode": DefaultMode}}
}

// Load reads the base configuration from path, or returns Default when path
// is empty.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a configuration file. JSON5 (.json5, zenohd's native
// format), JSON and YAML (.json, .yaml, .yml) and TOML (.toml) are supported.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfigLoad, path, err)
	}

	tree := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json5":
		err = json5.Unmarshal(data, &tree)
	case ".json", ".yaml", ".yml":
		// YAML is a superset of JSON, so one decoder covers both.
		err = yaml.Unmarshal(data, &tree)
	case ".toml":
		err = toml.Unmarshal(data, &tree)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported config format %q", ErrConfigLoad, path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigLoad, path, err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return &Config{tree: tree}, nil
}

// Mode returns the configured Zenoh mode, defaulting to peer.
func (c *Config) Mode() string {
	if mode, ok := c.tree["mode"].(string); ok && mode != "" {
		return mode
	}
	return DefaultMode
}

// SetScouting applies scouting options.
func (c *Config) SetScouting(s Scouting) error {
	if s.MultihopGossip {
		if mode := c.Mode(); mode == "client" {
			return fmt.Errorf("%w: scouting.gossip.multihop in %s mode", ErrUnsupportedOption, mode)
		}
		gossip, err := c.object("scouting", "gossip")
		if err != nil {
			return err
		}
		if raw, ok := gossip["enabled"]; ok {
			enabled, isBool := raw.(bool)
			if !isBool {
				return fmt.Errorf("%w: scouting.gossip.enabled is %T, want bool", ErrUnsupportedOption, raw)
			}
			if !enabled {
				return fmt.Errorf("%w: scouting.gossip.multihop with gossip disabled", ErrUnsupportedOption)
			}
		}
		gossip["multihop"] = true
	}
	if s.DisableMulticast {
		multicast, err := c.object("scouting", "multicast")
		if err != nil {
			return err
		}
		multicast["enabled"] = false
	}
	return nil
}

// ExtendListen appends eps to listen.endpoints.
func (c *Config) ExtendListen(eps []endpoint.Endpoint) error {
	return c.extendEndpoints("listen", eps)
}

// ExtendConnect appends eps to connect.endpoints.
func (c *Config) ExtendConnect(eps []endpoint.Endpoint) error {
	return c.extendEndpoints("connect", eps)
}

// ListenEndpoints returns the locators in listen.endpoints.
func (c *Config) ListenEndpoints() []string {
	return c.endpoints("listen")
}

// ConnectEndpoints returns the locators in connect.endpoints.
func (c *Config) ConnectEndpoints() []string {
	return c.endpoints("connect")
}

// MarshalJSON encodes the configuration in the JSON form zenohd reads.
func (c *Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.tree)
}

// WriteFile writes the configuration as JSON, creating parent directories.
func (c *Config) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c.tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encode overlay config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write overlay config: %w", err)
	}
	return nil
}

func (c *Config) extendEndpoints(section string, eps []endpoint.Endpoint) error {
	sec, err := c.object(section)
	if err != nil {
		return err
	}

	var list []any
	switch existing := sec["endpoints"].(type) {
	case nil:
	case []any:
		list = existing
	default:
		return fmt.Errorf("%w: %s.endpoints is %T, want a list", ErrUnsupportedOption, section, existing)
	}

	present := make(map[string]struct{}, len(list)+len(eps))
	for _, v := range list {
		if s, ok := v.(string); ok {
			present[s] = struct{}{}
		}
	}
	for _, ep := range eps {
		loc := ep.String()
		if _, ok := present[loc]; ok {
			continue
		}
		present[loc] = struct{}{}
		list = append(list, loc)
	}
	sec["endpoints"] = list
	return nil
}

func (c *Config) endpoints(section string) []string {
	sec, ok := c.tree[section].(map[string]any)
	if !ok {
		return nil
	}
	list, ok := sec["endpoints"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// object walks path from the root, creating missing objects. A non-object
// value on the way means the option cannot be applied.
func (c *Config) object(path ...string) (map[string]any, error) {
	cur := c.tree
	for i, key := range path {
		switch next := cur[key].(type) {
		case nil:
			m := map[string]any{}
			cur[key] = m
			cur = m
		case map[string]any:
			cur = next
		default:
			return nil, fmt.Errorf("%w: %s is %T, want an object", ErrUnsupportedOption, strings.Join(path[:i+1], "."), next)
		}
	}
	return cur, nil
}

// Keys returns the top-level keys in sorted order.
func (c *Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.tree))
}
