package chunkfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sample(x, z int) Data {
	d := Data{X: x, Z: z, Size: 4, MaxHeight: 8}
	d.Voxels = make([]uint32, d.cells())
	d.Lights = make([]uint32, d.cells())
	for i := range d.Voxels {
		d.Voxels[i] = uint32(i%7) | uint32(i%3)<<16 | uint32(i%2)<<24
		d.Lights[i] = uint32(15 << 12)
	}
	return d
}

func TestSaveLoadSaveIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, sample(-3, 7))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "-3_7.json" {
		t.Fatalf("file name = %s", filepath.Base(path))
	}
	first, _ := os.ReadFile(path)

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.X != -3 || d.Z != 7 || d.Voxels[10] != sample(-3, 7).Voxels[10] {
		t.Fatalf("unexpected data: %+v", d)
	}
	if _, err := Save(dir, d); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Fatalf("save->load->save changed bytes")
	}
}

func TestLoadDeletesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0_0.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file still present: %v", err)
	}
}

func TestLoadMissingIsNotCorrupt(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "1_1.json"))
	if !errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeRejectsWrongArrayLength(t *testing.T) {
	b, err := Encode(sample(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	b = bytes.Replace(b, []byte(`"size":4`), []byte(`"size":5`), 1)
	if _, err := Decode(b); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestWalkSkipsAndReportsCorrupt(t *testing.T) {
	dir := t.TempDir()
	if _, err := Save(dir, sample(1, 0)); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "0_0.json")
	os.WriteFile(bad, []byte("{"), 0o644)

	var seen []string
	removed, err := Walk(dir, func(path string, d Data) error {
		seen = append(seen, filepath.Base(path))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(removed) != 1 || removed[0] != bad {
		t.Fatalf("removed = %v", removed)
	}
	if len(seen) != 1 || seen[0] != "1_0.json" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		in   string
		x, z int
		ok   bool
	}{
		{"0_0.json", 0, 0, true},
		{"-12_5.json", -12, 5, true},
		{"dir/3_-4.json", 3, -4, true},
		{"3_4.txt", 0, 0, false},
		{"abc.json", 0, 0, false},
	}
	for _, c := range cases {
		x, z, ok := ParseFileName(c.in)
		if ok != c.ok || x != c.x || z != c.z {
			t.Fatalf("ParseFileName(%q) = %d,%d,%v", c.in, x, z, ok)
		}
	}
}
