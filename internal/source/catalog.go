package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/astrolabe-io/astrolabe/internal/config"
)

const (
	// DefaultCatalogConfigPath is the default location of the catalog file.
	DefaultCatalogConfigPath = ".astrolabe.yaml"
	// CatalogConfigPathEnvVar names the environment variable overriding the path.
	CatalogConfigPathEnvVar = "ASTROLABE_CONFIG_PATH"
	// DefaultGroup is pulled when no group is named.
	DefaultGroup = "active"
)

// ErrUnknownGroup is returned for a catalog group with no URL.
var ErrUnknownGroup = errors.New("unknown catalog group")

// defaultGroupOrder lists the built-in groups in the order they are pulled by -all.
var defaultGroupOrder = []string{"active", "stations", "last-30-days", "starlink", "visual"}

// DefaultGroups maps the built-in catalog groups to their CelesTrak URLs.
var DefaultGroups = map[string]string{
	"active":       "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle",
	"stations":     "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle",
	"last-30-days": "https://celestrak.org/NORAD/elements/gp.php?GROUP=last-30-days&FORMAT=tle",
	"starlink":     "https://celestrak.org/NORAD/elements/gp.php?GROUP=starlink&FORMAT=tle",
	"visual":       "https://celestrak.org/NORAD/elements/gp.php?GROUP=visual&FORMAT=tle",
}

// CatalogConfig holds catalog group overrides loaded from .astrolabe.yaml.
//
// Example file:
//
//	default_group: stations
//	groups:
//	  geo: https://celestrak.org/NORAD/elements/gp.php?GROUP=geo&FORMAT=tle
type CatalogConfig struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	DefaultGroup string `yaml:"default_group"`
	// Groups adds or replaces group URLs. Built-in groups stay available.
	Groups map[string]string `yaml:"groups"`
}

// LoadCatalogConfig loads catalog overrides from path.
//
// A missing, unreadable, empty or invalid file yields an empty configuration
// and no error: the built-in groups are always usable.
func LoadCatalogConfig(path string) (*CatalogConfig, error) {
	cfg := &CatalogConfig{Groups: make(map[string]string)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Catalog config not found, using built-in groups",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read catalog config, using built-in groups",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse catalog config, using built-in groups",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &CatalogConfig{Groups: make(map[string]string)}, nil
	}

	if cfg.Groups == nil {
		cfg.Groups = make(map[string]string)
	}

	return cfg, nil
}

// LoadCatalogConfigFromEnv loads the file named by ASTROLABE_CONFIG_PATH,
// falling back to .astrolabe.yaml in the working directory.
func LoadCatalogConfigFromEnv() (*CatalogConfig, error) {
	return LoadCatalogConfig(config.GetEnvStr(CatalogConfigPathEnvVar, DefaultCatalogConfigPath))
}

// Default returns the group pulled when none is named.
func (c *CatalogConfig) Default() string {
	if c != nil && c.DefaultGroup != "" {
		return c.DefaultGroup
	}

	return DefaultGroup
}

// GroupURL resolves a group name. Configured groups win over built-in ones.
func (c *CatalogConfig) GroupURL(name string) (string, error) {
	if c != nil {
		if u, ok := c.Groups[name]; ok && u != "" {
			return u, nil
		}
	}

	if u, ok := DefaultGroups[name]; ok {
		return u, nil
	}

	return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownGroup, name, c.GroupNames())
}

// GroupNames lists every resolvable group: built-in groups first in their
// canonical order, then configured extras sorted by name.
func (c *CatalogConfig) GroupNames() []string {
	names := slices.Clone(defaultGroupOrder)

	if c == nil {
		return names
	}

	var extra []string

	for name, u := range c.Groups {
		if u == "" || slices.Contains(names, name) {
			continue
		}

		extra = append(extra, name)
	}

	sort.Strings(extra)

	return append(names, extra...)
}
