// Package chunkfile is the one-JSON-file-per-chunk on-disk format. Voxel and
// light arrays are little-endian u32, zstd compressed and base64 encoded.
package chunkfile

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// ErrCorrupt is returned for files that do not parse. Load deletes them.
var ErrCorrupt = errors.New("corrupt chunk file")

type Data struct {
	X         int
	Z         int
	Size      int
	MaxHeight int
	Voxels    []uint32
	Lights    []uint32
}

func (d Data) cells() int { return d.Size * d.Size * d.MaxHeight }

type fileV1 struct {
	Version   int    `json:"version"`
	X         int    `json:"x"`
	Z         int    `json:"z"`
	Size      int    `json:"size"`
	MaxHeight int    `json:"max_height"`
	Voxels    string `json:"voxels"`
	Lights    string `json:"lights"`
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return encoder, decoder, codecErr
}

func packArray(enc *zstd.Encoder, a []uint32) string {
	raw := make([]byte, 4*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	return base64.StdEncoding.EncodeToString(enc.EncodeAll(raw, nil))
}

func unpackArray(dec *zstd.Decoder, s string, n int) ([]uint32, error) {
	comp, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(comp, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != 4*n {
		return nil, fmt.Errorf("array has %d bytes, want %d", len(raw), 4*n)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return out, nil
}

// Encode is deterministic: equal Data always yields equal bytes.
func Encode(d Data) ([]byte, error) {
	if len(d.Voxels) != d.cells() || len(d.Lights) != d.cells() {
		return nil, fmt.Errorf("chunk %d_%d: array length mismatch", d.X, d.Z)
	}
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fileV1{
		Version:   Version,
		X:         d.X,
		Z:         d.Z,
		Size:      d.Size,
		MaxHeight: d.MaxHeight,
		Voxels:    packArray(enc, d.Voxels),
		Lights:    packArray(enc, d.Lights),
	})
}

// Decode wraps every parse failure in ErrCorrupt.
func Decode(b []byte) (Data, error) {
	var f fileV1
	if err := json.Unmarshal(b, &f); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if f.Size <= 0 || f.MaxHeight <= 0 {
		return Data{}, fmt.Errorf("%w: bad dimensions %dx%d", ErrCorrupt, f.Size, f.MaxHeight)
	}
	_, dec, err := codec()
	if err != nil {
		return Data{}, err
	}
	d := Data{X: f.X, Z: f.Z, Size: f.Size, MaxHeight: f.MaxHeight}
	if d.Voxels, err = unpackArray(dec, f.Voxels, d.cells()); err != nil {
		return Data{}, fmt.Errorf("%w: voxels: %v", ErrCorrupt, err)
	}
	if d.Lights, err = unpackArray(dec, f.Lights, d.cells()); err != nil {
		return Data{}, fmt.Errorf("%w: lights: %v", ErrCorrupt, err)
	}
	return d, nil
}

func FileName(x, z int) string { return fmt.Sprintf("%d_%d.json", x, z) }

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (x, z int, ok bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	if base == filepath.Base(name) {
		return 0, 0, false
	}
	xs, zs, found := strings.Cut(base, "_")
	if !found {
		return 0, 0, false
	}
	var err error
	if x, err = strconv.Atoi(xs); err != nil {
		return 0, 0, false
	}
	if z, err = strconv.Atoi(zs); err != nil {
		return 0, 0, false
	}
	return x, z, true
}

// Save writes d into dir under its canonical name via a temp file and rename.
func Save(dir string, d Data) (string, error) {
	b, err := Encode(d)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(d.X, d.Z))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// Load reads one chunk file. A file that fails to parse is removed and
// ErrCorrupt returned; a missing file returns an error matching os.ErrNotExist.
func Load(path string) (Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Data{}, err
	}
	d, err := Decode(b)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			_ = os.Remove(path)
		}
		return Data{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return d, nil
}

// Walk loads every chunk file in dir in name order and calls fn for the valid
// ones. Corrupt files are deleted and their paths returned.
func Walk(dir string, fn func(path string, d Data) error) (removed []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		d, err := Load(path)
		if errors.Is(err, ErrCorrupt) {
			removed = append(removed, path)
			continue
		}
		if err != nil {
			return removed, err
		}
		if err := fn(path, d); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
