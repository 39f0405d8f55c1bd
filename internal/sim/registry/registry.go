// Package registry holds the immutable block catalog shared by every world.
package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelforge.io/internal/config"
)

const AirID uint32 = 0

type Block struct {
	ID            uint32            `json:"id"`
	Name          string            `json:"name"`
	IsSolid       bool              `json:"is_solid"`
	IsFluid       bool              `json:"is_fluid"`
	IsPlant       bool              `json:"is_plant"`
	IsLight       bool              `json:"is_light"`
	IsTransparent bool              `json:"is_transparent"`
	LightLevel    uint32            `json:"light_level"`
	Rotatable     bool              `json:"rotatable"`
	Faces         map[string]string `json:"faces,omitempty"`
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	byID   map[uint32]Block
	byName map[string]uint32
	ids    []uint32
	digest string
}

var air = Block{ID: AirID, Name: "air", IsTransparent: true}

// Built-in palette used when no asset directory is configured.
const (
	Stone uint32 = iota + 1
	Dirt
	Grass
	Sand
	Water
	Log
	Leaves
	Glass
	Torch
	Flower
	Gravel
)

func Default() *Registry {
	r, err := New([]Block{
		air,
		{ID: Stone, Name: "stone", IsSolid: true},
		{ID: Dirt, Name: "dirt", IsSolid: true},
		{ID: Grass, Name: "grass", IsSolid: true},
		{ID: Sand, Name: "sand", IsSolid: true},
		{ID: Water, Name: "water", IsFluid: true, IsTransparent: true},
		{ID: Log, Name: "log", IsSolid: true, Rotatable: true},
		{ID: Leaves, Name: "leaves", IsSolid: true, IsTransparent: true},
		{ID: Glass, Name: "glass", IsSolid: true, IsTransparent: true},
		{ID: Torch, Name: "torch", IsLight: true, IsTransparent: true, LightLevel: 14},
		{ID: Flower, Name: "flower", IsPlant: true, IsTransparent: true},
		{ID: Gravel, Name: "gravel", IsSolid: true},
	})
	if err != nil {
		panic(err)
	}
	return r
}

func New(blocks []Block) (*Registry, error) {
	r := &Registry{byID: map[uint32]Block{}, byName: map[string]uint32{}}
	for _, b := range blocks {
		if b.Name == "" {
			return nil, fmt.Errorf("block %d: empty name", b.ID)
		}
		b.Name = strings.ToLower(b.Name)
		if prev, ok := r.byID[b.ID]; ok {
			delete(r.byName, prev.Name)
		}
		r.byID[b.ID] = b
		r.byName[b.Name] = b.ID
	}
	if b, ok := r.byID[AirID]; !ok || b.Name != "air" {
		r.byID[AirID] = air
		r.byName["air"] = AirID
	}
	for id := range r.byID {
		r.ids = append(r.ids, id)
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	b, _ := json.Marshal(r.Blocks())
	sum := sha256.Sum256(b)
	r.digest = hex.EncodeToString(sum[:])
	return r, nil
}

// Load reads <assets>/blocks/*.json and <assets>/packs/<pack>/blocks/*.json.
// Each block file is merged with <dir>/_defaults.json without overwriting its own keys.
// Later files win on duplicate ids.
func Load(assetsDir string, packs []string) (*Registry, error) {
	dirs := []string{filepath.Join(assetsDir, "blocks")}
	for _, p := range packs {
		dirs = append(dirs, filepath.Join(assetsDir, "packs", p, "blocks"))
	}
	var blocks []Block
	for _, dir := range dirs {
		bs, err := loadDir(dir)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, bs...)
	}
	if len(blocks) == 0 {
		return Default(), nil
	}
	return New(blocks)
}

func loadDir(dir string) ([]Block, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defaults := map[string]any{}
	if raw, err := os.ReadFile(filepath.Join(dir, "_defaults.json")); err == nil {
		if err := json.Unmarshal(raw, &defaults); err != nil {
			return nil, fmt.Errorf("%s/_defaults.json: %w", dir, err)
		}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	out := make([]Block, 0, len(files))
	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("block %s: %w", filepath.Base(p), err)
		}
		merged := config.Merge(m, defaults, false)
		if _, ok := merged["name"]; !ok {
			merged["name"] = strings.TrimSuffix(filepath.Base(p), ".json")
		}
		if _, ok := merged["id"]; !ok {
			return nil, fmt.Errorf("block %s: missing id", filepath.Base(p))
		}
		b, _ := json.Marshal(merged)
		var blk Block
		if err := json.Unmarshal(b, &blk); err != nil {
			return nil, fmt.Errorf("block %s: %w", filepath.Base(p), err)
		}
		out = append(out, blk)
	}
	return out, nil
}

func (r *Registry) HasType(id uint32) bool {
	_, ok := r.byID[id]
	return ok
}

// GetBlock resolves unknown ids to air.
func (r *Registry) GetBlock(id uint32) Block {
	if b, ok := r.byID[id]; ok {
		return b
	}
	return air
}

func (r *Registry) IDByName(name string) (uint32, bool) {
	id, ok := r.byName[strings.ToLower(name)]
	return id, ok
}

func (r *Registry) IsAir(id uint32) bool         { return r.GetBlock(id).ID == AirID }
func (r *Registry) IsPlant(id uint32) bool       { return r.GetBlock(id).IsPlant }
func (r *Registry) IsSolid(id uint32) bool       { return r.GetBlock(id).IsSolid }
func (r *Registry) IsFluid(id uint32) bool       { return r.GetBlock(id).IsFluid }
func (r *Registry) IsTransparent(id uint32) bool { return r.GetBlock(id).IsTransparent }
func (r *Registry) IsLight(id uint32) bool       { return r.GetBlock(id).IsLight }

// IsOpaque is true for cells that hide the faces of their neighbours.
func (r *Registry) IsOpaque(id uint32) bool {
	b := r.GetBlock(id)
	return b.ID != AirID && !b.IsTransparent && !b.IsFluid && !b.IsPlant
}

// Blocks returns the catalog sorted by id.
func (r *Registry) Blocks() []Block {
	out := make([]Block, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int       { return len(r.ids) }
func (r *Registry) Digest() string { return r.digest }
