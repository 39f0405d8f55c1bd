package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultQueries(t *testing.T) {
	r := Default()
	if !r.IsAir(0) || !r.HasType(0) {
		t.Fatalf("id 0 must be air")
	}
	if !r.IsSolid(Stone) || r.IsSolid(Water) || !r.IsFluid(Water) {
		t.Fatalf("stone/water flags wrong")
	}
	if !r.IsPlant(Flower) || !r.IsLight(Torch) || !r.IsTransparent(Glass) {
		t.Fatalf("plant/light/transparent flags wrong")
	}
	if id, ok := r.IDByName("GRASS"); !ok || id != Grass {
		t.Fatalf("IDByName: %d %v", id, ok)
	}
}

func TestUnknownIDBehavesAsAir(t *testing.T) {
	r := Default()
	const unknown = 4000
	if r.HasType(unknown) {
		t.Fatalf("unexpected type")
	}
	if !r.IsAir(unknown) || r.IsSolid(unknown) || r.IsFluid(unknown) {
		t.Fatalf("unknown id should query as air")
	}
	if r.GetBlock(unknown).Name != "air" {
		t.Fatalf("GetBlock(unknown)=%+v", r.GetBlock(unknown))
	}
}

func TestLoadMergesDefaultsAndPacks(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("blocks/_defaults.json", `{"is_solid": true, "faces": {"all": "default"}}`)
	write("blocks/stone.json", `{"id": 1}`)
	write("blocks/water.json", `{"id": 2, "is_solid": false, "is_fluid": true}`)
	write("packs/extra/blocks/lamp.json", `{"id": 3, "is_light": true, "light_level": 15}`)
	write("packs/extra/blocks/stone.json", `{"id": 1, "name": "Cobble", "is_solid": true}`)

	r, err := Load(root, []string{"extra"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !r.IsSolid(1) || r.GetBlock(1).Name != "cobble" {
		t.Fatalf("pack should override id 1: %+v", r.GetBlock(1))
	}
	if _, ok := r.IDByName("stone"); ok {
		t.Fatalf("overridden name should be gone")
	}
	if r.IsSolid(2) || !r.IsFluid(2) {
		t.Fatalf("water: %+v", r.GetBlock(2))
	}
	if r.GetBlock(2).Faces["all"] != "default" {
		t.Fatalf("defaults not merged: %+v", r.GetBlock(2))
	}
	if !r.IsLight(3) || r.GetBlock(3).LightLevel != 15 {
		t.Fatalf("lamp: %+v", r.GetBlock(3))
	}
	if !r.IsAir(0) {
		t.Fatalf("air must be implicit")
	}
}

func TestLoadEmptyAssetsFallsBackToDefault(t *testing.T) {
	r, err := Load(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != Default().Len() {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestShippedBlocksMatchBuiltinPalette(t *testing.T) {
	r, err := Load(filepath.Join("..", "..", "..", "assets"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if r.Len() != def.Len() {
		t.Fatalf("len = %d, want %d", r.Len(), def.Len())
	}
	for _, b := range def.Blocks() {
		got := r.GetBlock(b.ID)
		if got.Name != b.Name || got.IsSolid != b.IsSolid || got.IsFluid != b.IsFluid ||
			got.IsPlant != b.IsPlant || got.IsLight != b.IsLight || got.IsTransparent != b.IsTransparent ||
			got.LightLevel != b.LightLevel || got.Rotatable != b.Rotatable {
			t.Fatalf("block %d: got %+v, want %+v", b.ID, got, b)
		}
	}
}
