package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/persistence/chunkfile"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/terrain"
)

type report struct {
	Files     int
	Rewritten int
	Voxels    int
	Removed   []string
}

func (r report) String() string {
	return fmt.Sprintf("files=%d rewritten=%d voxels=%d removed=%d", r.Files, r.Rewritten, r.Voxels, len(r.Removed))
}

// rewriteChunks applies fix to every voxel of every valid chunk in dir and
// saves the files where fix changed something. Corrupt files are deleted.
func rewriteChunks(dir string, fix func(v uint32) (uint32, bool)) (report, error) {
	var rep report
	removed, err := chunkfile.Walk(dir, func(path string, d chunkfile.Data) error {
		rep.Files++
		changed := 0
		for i, v := range d.Voxels {
			if nv, ok := fix(v); ok && nv != v {
				d.Voxels[i] = nv
				changed++
			}
		}
		if changed == 0 {
			return nil
		}
		if _, err := chunkfile.Save(dir, d); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		rep.Rewritten++
		rep.Voxels += changed
		return nil
	})
	rep.Removed = removed
	if errors.Is(err, fs.ErrNotExist) {
		return rep, nil
	}
	return rep, err
}

// cleanVoxel drops ids the registry does not know. Nothing else of the voxel survives.
func cleanVoxel(reg *registry.Registry) func(uint32) (uint32, bool) {
	return func(v uint32) (uint32, bool) {
		if reg.HasType(terrain.ExtractID(v)) {
			return v, false
		}
		return 0, true
	}
}

// remapVoxel swaps ids through table keeping rotation and stage bits.
func remapVoxel(table map[uint32]uint32) func(uint32) (uint32, bool) {
	return func(v uint32) (uint32, bool) {
		to, ok := table[terrain.ExtractID(v)]
		if !ok {
			return v, false
		}
		return terrain.InsertID(v, to), true
	}
}

type fixesFile struct {
	Blocks [][2]uint32 `json:"blocks"`
}

func loadFixes(path string) (map[uint32]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixesFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table := make(map[uint32]uint32, len(f.Blocks))
	for _, p := range f.Blocks {
		if _, dup := table[p[0]]; dup {
			return nil, fmt.Errorf("%s: id %d remapped twice", path, p[0])
		}
		table[p[0]] = p[1]
	}
	return table, nil
}

// worldPacks reads the block packs a world was configured with, if worlds.json is present.
func worldPacks(worldsPath, world string) ([]string, error) {
	cfgs, err := config.LoadWorlds(worldsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, c := range cfgs {
		if c.Name == world {
			return c.Packs, nil
		}
	}
	return nil, nil
}

func newCleanCmd() *cobra.Command {
	var (
		assetsDir string
		packs     []string
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Drop unregistered voxel ids and delete corrupt chunk files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, worlds, err := persistentDirs(cmd)
			if err != nil {
				return err
			}
			for _, w := range worlds {
				use := packs
				if !cmd.Flags().Changed("packs") {
					if use, err = worldPacks(filepath.Join(assetsDir, "worlds.json"), w); err != nil {
						return err
					}
				}
				reg, err := registry.Load(assetsDir, use)
				if err != nil {
					return err
				}
				rep, err := rewriteChunks(chunksDir(dataDir, w), cleanVoxel(reg))
				if err != nil {
					return fmt.Errorf("%s: %w", w, err)
				}
				printReport(cmd, w, rep)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&assetsDir, "assets", "./assets", "assets directory (blocks, packs)")
	cmd.Flags().StringSliceVar(&packs, "packs", nil, "block packs (default: the world's packs from worlds.json)")
	return cmd
}

func newRemapCmd() *cobra.Command {
	var fixesPath string
	cmd := &cobra.Command{
		Use:   "remap",
		Short: "Rewrite block ids from a fixes.json table, keeping rotation and stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := loadFixes(fixesPath)
			if err != nil {
				return err
			}
			dataDir, worlds, err := persistentDirs(cmd)
			if err != nil {
				return err
			}
			for _, w := range worlds {
				rep, err := rewriteChunks(chunksDir(dataDir, w), remapVoxel(table))
				if err != nil {
					return fmt.Errorf("%s: %w", w, err)
				}
				printReport(cmd, w, rep)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixesPath, "fixes", "fixes.json", `remap table: {"blocks": [[old,new], ...]}`)
	return cmd
}

func printReport(cmd *cobra.Command, world string, rep report) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", world, rep)
	if len(rep.Removed) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %s\n", world, strings.Join(rep.Removed, ", "))
	}
}
