package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoWorlds is returned when worlds.json has no usable world entries.
var ErrNoWorlds = errors.New("no worlds configured")

//go:embed worlds.schema.json
var worldsSchemaJSON string

const (
	GeneratorFlat  = "FLAT"
	GeneratorHilly = "HILLY"
)

// WorldConfig is a single world entry after merging with the shared defaults.
type WorldConfig struct {
	Name         string   `json:"name"`
	Save         bool     `json:"save"`
	ChunkSize    int      `json:"chunk_size"`
	MaxHeight    int      `json:"max_height"`
	SubChunks    int      `json:"sub_chunks"`
	Dimension    int      `json:"dimension"`
	RenderRadius int      `json:"render_radius"`
	Time         float64  `json:"time"`
	TickSpeed    float64  `json:"tick_speed"`
	Packs        []string `json:"packs"`
	Texturepack  string   `json:"texturepack"`
	Generator    string   `json:"generator"`
	Seed         int64    `json:"seed"`
	SaveInterval int      `json:"save_interval"`
	MaxChunks    int      `json:"max_chunks"`
}

type worldsFile struct {
	Shared map[string]any   `json:"shared"`
	Worlds []map[string]any `json:"worlds"`
}

var worldsSchema = mustCompileSchema("worlds.schema.json", worldsSchemaJSON)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

func LoadWorlds(path string) ([]WorldConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("worlds.json: %w", err)
	}
	return ParseWorlds(b)
}

// ParseWorlds merges every world with the shared block (shared values never
// overwrite a world's own keys), validates the result and fills defaults.
func ParseWorlds(b []byte) ([]WorldConfig, error) {
	var f worldsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("worlds.json: %w", err)
	}
	if len(f.Worlds) == 0 {
		return nil, fmt.Errorf("worlds.json: %w", ErrNoWorlds)
	}
	out := make([]WorldConfig, 0, len(f.Worlds))
	seen := map[string]bool{}
	for i, raw := range f.Worlds {
		merged := Merge(raw, f.Shared, false)
		if err := worldsSchema.Validate(normalizeForSchema(merged)); err != nil {
			return nil, fmt.Errorf("worlds.json: worlds[%d]: %w", i, err)
		}
		mb, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("worlds.json: worlds[%d]: %w", i, err)
		}
		var wc WorldConfig
		if err := json.Unmarshal(mb, &wc); err != nil {
			return nil, fmt.Errorf("worlds.json: worlds[%d]: %w", i, err)
		}
		wc.applyDefaults()
		if seen[wc.Name] {
			return nil, fmt.Errorf("worlds.json: duplicate world name: %s", wc.Name)
		}
		seen[wc.Name] = true
		out = append(out, wc)
	}
	return out, nil
}

// normalizeForSchema round-trips through JSON so the validator sees plain decoded values.
func normalizeForSchema(m map[string]any) any {
	b, _ := json.Marshal(m)
	var v any
	_ = json.Unmarshal(b, &v)
	return v
}

func (c *WorldConfig) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 16
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 256
	}
	if c.SubChunks <= 0 {
		c.SubChunks = 8
	}
	if c.MaxHeight%c.SubChunks != 0 {
		c.SubChunks = 1
	}
	if c.Dimension <= 0 {
		c.Dimension = 1
	}
	if c.RenderRadius <= 0 {
		c.RenderRadius = 8
	}
	if c.TickSpeed == 0 {
		c.TickSpeed = 2
	}
	if c.Generator == "" {
		c.Generator = GeneratorFlat
	}
	c.Generator = strings.ToUpper(c.Generator)
	if c.SaveInterval <= 0 {
		c.SaveInterval = 600
	}
}

// Default returns a single FLAT world, used by tests and as a fallback.
func Default(name string) WorldConfig {
	c := WorldConfig{Name: name}
	c.applyDefaults()
	return c
}
