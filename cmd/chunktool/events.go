package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"voxelforge.io/internal/sim/world"
)

type eventFilter struct {
	Player   string
	Kind     string
	FromTick uint64
	ToTick   uint64
}

func (f eventFilter) match(e world.Event) bool {
	if f.Player != "" && e.Player != f.Player {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if e.Tick < f.FromTick {
		return false
	}
	return f.ToTick == 0 || e.Tick <= f.ToTick
}

func newEventsCmd() *cobra.Command {
	var (
		filter  eventFilter
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print a world's event log, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, worlds, err := persistentDirs(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range worlds {
				files, err := listEventFiles(filepath.Join(dataDir, w, "events"))
				if err != nil {
					if os.IsNotExist(err) {
						continue
					}
					return err
				}
				counts := map[string]int{}
				for _, path := range files {
					err := readEventFile(path, func(e world.Event) error {
						if !filter.match(e) {
							return nil
						}
						counts[e.Kind]++
						if summary {
							return nil
						}
						b, _ := json.Marshal(e)
						_, err := fmt.Fprintln(out, string(b))
						return err
					})
					if err != nil {
						return err
					}
				}
				if summary {
					kinds := make([]string, 0, len(counts))
					for k := range counts {
						kinds = append(kinds, k)
					}
					sort.Strings(kinds)
					for _, k := range kinds {
						fmt.Fprintf(out, "%s: %s=%d\n", w, k, counts[k])
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Player, "player", "", "only events of this player id")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only events of this kind (join, leave, evict, chat, edit)")
	cmd.Flags().Uint64Var(&filter.FromTick, "from_tick", 0, "first tick (inclusive)")
	cmd.Flags().Uint64Var(&filter.ToTick, "to_tick", 0, "last tick (inclusive, 0 = no limit)")
	cmd.Flags().BoolVar(&summary, "summary", false, "print per-kind counts instead of events")
	return cmd
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readEventFile(path string, fn func(world.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e world.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
