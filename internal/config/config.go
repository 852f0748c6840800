// Package config handles configuration loading for the plate grid server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Catalog CatalogConfig `yaml:"catalog"`
	Grid    GridConfig    `yaml:"grid"`
	Plates  PlatesConfig  `yaml:"plates"`
	Demo    DemoConfig    `yaml:"demo"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB        int `yaml:"tile_size_mb"`
	TileTTLMinutes    int `yaml:"tile_ttl_minutes"`
	ChunkCacheEntries int `yaml:"chunk_cache_entries"`
}

// CatalogConfig contains plate catalog settings.
type CatalogConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// GridConfig holds grid settings shared by every plate. Plates may override
// each field.
type GridConfig struct {
	Spacer      *float64 `yaml:"spacer"`
	Concurrency *int     `yaml:"concurrency"`
	ShowLabels  *bool    `yaml:"show_labels"`
	Pickable    *bool    `yaml:"pickable"`
}

// PlateConfig configures one plate.
type PlateConfig struct {
	ZarrPath     string       `yaml:"zarr_path"`
	Title        string       `yaml:"title"`
	RowLabels    []string     `yaml:"row_labels"`
	ColumnLabels []string     `yaml:"column_labels"`
	Selections   [][]int      `yaml:"selections"`
	Model        *ModelConfig `yaml:"model"`
	GridConfig   `yaml:",inline"`
}

// ModelConfig places a plate in world space: pixels are scaled first, then
// translated.
type ModelConfig struct {
	Scale     []float64 `yaml:"scale"`
	Translate []float64 `yaml:"translate"`
}

// Affine returns the transform described by m.
func (m ModelConfig) Affine() (geometry.Affine, error) {
	a := geometry.Identity()
	if len(m.Scale) > 0 {
		if len(m.Scale) != 2 {
			return a, fmt.Errorf("model.scale needs 2 values, got %d", len(m.Scale))
		}
		a = geometry.Scale(m.Scale[0], m.Scale[1])
	}
	if len(m.Translate) > 0 {
		if len(m.Translate) != 2 {
			return a, fmt.Errorf("model.translate needs 2 values, got %d", len(m.Translate))
		}
		a = geometry.Translate(m.Translate[0], m.Translate[1]).Multiply(a)
	}
	return a, nil
}

// DemoConfig describes the synthetic plate served when no plate is
// configured or catalogued.
type DemoConfig struct {
	Rows     int `yaml:"rows"`
	Columns  int `yaml:"columns"`
	Size     int `yaml:"size"`
	Levels   int `yaml:"levels"`
	Channels int `yaml:"channels"`
}

// PlatesConfig is an ordered mapping of plate ID to plate settings. The first
// plate in file order is the default.
type PlatesConfig struct {
	Plates  map[string]PlateConfig
	Default string
	order   []string
}

// UnmarshalYAML keeps the mapping order of the plates section.
func (p *PlatesConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("plates: expected a mapping, got %s", kindName(node.Kind))
	}
	p.Plates = make(map[string]PlateConfig, len(node.Content)/2)
	p.order = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var pc PlateConfig
		if err := node.Content[i+1].Decode(&pc); err != nil {
			return fmt.Errorf("plates.%s: %w", id, err)
		}
		if _, dup := p.Plates[id]; dup {
			return fmt.Errorf("plates.%s: duplicate plate", id)
		}
		p.Plates[id] = pc
		p.order = append(p.order, id)
	}
	if len(p.order) > 0 {
		p.Default = p.order[0]
	}
	return nil
}

// IDs returns plate IDs in file order.
func (p PlatesConfig) IDs() []string {
	return append([]string(nil), p.order...)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// PlateSettings is a plate's configuration with grid defaults applied.
type PlateSettings struct {
	ID           string
	ZarrPath     string
	Title        string
	RowLabels    []string
	ColumnLabels []string
	Selections   [][]int
	Spacer       float64
	Concurrency  int
	ShowLabels   bool
	Pickable     bool
	// Model is nil when the plate sits at the world origin unscaled.
	Model *geometry.Affine
}

// Plate resolves plate id against the grid defaults.
func (c *Config) Plate(id string) (PlateSettings, bool) {
	pc, ok := c.Plates.Plates[id]
	if !ok {
		return PlateSettings{}, false
	}
	s := c.GridSettings(pc.GridConfig)
	s.ID = id
	s.ZarrPath = pc.ZarrPath
	s.Title = pc.Title
	if s.Title == "" {
		s.Title = id
	}
	s.RowLabels = pc.RowLabels
	s.ColumnLabels = pc.ColumnLabels
	s.Selections = pc.Selections
	if pc.Model != nil {
		if m, err := pc.Model.Affine(); err == nil {
			s.Model = &m
		}
	}
	return s, true
}

// GridSettings applies override on top of the grid defaults.
func (c *Config) GridSettings(override GridConfig) PlateSettings {
	g := c.Grid
	if override.Spacer != nil {
		g.Spacer = override.Spacer
	}
	if override.Concurrency != nil {
		g.Concurrency = override.Concurrency
	}
	if override.ShowLabels != nil {
		g.ShowLabels = override.ShowLabels
	}
	if override.Pickable != nil {
		g.Pickable = override.Pickable
	}
	return PlateSettings{
		Spacer:      deref(g.Spacer),
		Concurrency: deref(g.Concurrency),
		ShowLabels:  deref(g.ShowLabels),
		Pickable:    deref(g.Pickable),
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func ptr[T any](v T) *T { return &v }

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	for _, id := range cfg.Plates.IDs() {
		pc := cfg.Plates.Plates[id]
		if pc.ZarrPath == "" {
			return nil, fmt.Errorf("plates.%s: zarr_path is required", id)
		}
		if pc.Model != nil {
			if _, err := pc.Model.Affine(); err != nil {
				return nil, fmt.Errorf("plates.%s: %w", id, err)
			}
		}
	}

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Plate Grid",
		},
		Cache: CacheConfig{
			TileSizeMB:        512,
			TileTTLMinutes:    10,
			ChunkCacheEntries: 1024,
		},
		Catalog: CatalogConfig{
			SQLitePath: "./data/catalog.db",
		},
		Grid: GridConfig{
			Spacer:      ptr(5.0),
			Concurrency: ptr(10),
			ShowLabels:  ptr(true),
			Pickable:    ptr(true),
		},
		Demo: DemoConfig{
			Rows:     2,
			Columns:  3,
			Size:     2048,
			Levels:   4,
			Channels: 2,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.ChunkCacheEntries == 0 {
		cfg.Cache.ChunkCacheEntries = defaults.Cache.ChunkCacheEntries
	}
	if cfg.Catalog.SQLitePath == "" {
		cfg.Catalog.SQLitePath = defaults.Catalog.SQLitePath
	}
	if cfg.Grid.Spacer == nil {
		cfg.Grid.Spacer = defaults.Grid.Spacer
	}
	if cfg.Grid.Concurrency == nil {
		cfg.Grid.Concurrency = defaults.Grid.Concurrency
	}
	if cfg.Grid.ShowLabels == nil {
		cfg.Grid.ShowLabels = defaults.Grid.ShowLabels
	}
	if cfg.Grid.Pickable == nil {
		cfg.Grid.Pickable = defaults.Grid.Pickable
	}
	if cfg.Demo.Rows == 0 {
		cfg.Demo.Rows = defaults.Demo.Rows
	}
	if cfg.Demo.Columns == 0 {
		cfg.Demo.Columns = defaults.Demo.Columns
	}
	if cfg.Demo.Size == 0 {
		cfg.Demo.Size = defaults.Demo.Size
	}
	if cfg.Demo.Levels == 0 {
		cfg.Demo.Levels = defaults.Demo.Levels
	}
	if cfg.Demo.Channels == 0 {
		cfg.Demo.Channels = defaults.Demo.Channels
	}
}
