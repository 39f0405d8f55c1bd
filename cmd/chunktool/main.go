// Command chunktool runs offline maintenance over a server data directory.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chunktool:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chunktool",
		Short:         "Offline maintenance for voxelforge world data",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("data", "./data", "runtime data directory")
	root.PersistentFlags().String("world", "", "world name (default: every world under --data)")
	root.AddCommand(newCleanCmd(), newRemapCmd(), newEventsCmd(), newIndexCmd())
	return root
}

// worldNames resolves --world, or lists the world directories under dataDir.
func worldNames(dataDir, world string) ([]string, error) {
	if world != "" {
		return []string{world}, nil
	}
	ents, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func chunksDir(dataDir, world string) string { return filepath.Join(dataDir, world, "chunks") }

func persistentDirs(cmd *cobra.Command) (dataDir string, worlds []string, err error) {
	dataDir, _ = cmd.Flags().GetString("data")
	world, _ := cmd.Flags().GetString("world")
	worlds, err = worldNames(dataDir, world)
	return dataDir, worlds, err
}
