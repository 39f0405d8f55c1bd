package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"voxelforge.io/internal/persistence/indexdb"
)

func indexPath(dataDir, world string) string {
	return filepath.Join(dataDir, world, "index", "world.sqlite")
}

// openIndex refuses to create a database that the server never wrote.
func openIndex(dataDir, world string) (*indexdb.SQLiteIndex, error) {
	path := indexPath(dataDir, world)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: no index: %w", world, err)
	}
	return indexdb.OpenSQLite(path)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(w, string(b))
}

type saveRow struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Z     int    `json:"z"`
	Path  string `json:"path"`
	Tick  uint64 `json:"tick"`
}

type sessionRow struct {
	World    string `json:"world"`
	Player   string `json:"player"`
	Name     string `json:"name,omitempty"`
	JoinTick uint64 `json:"join_tick"`
	LeftTick uint64 `json:"left_tick,omitempty"`
	Open     bool   `json:"open"`
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Query the sqlite index the server keeps per saved world",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "saves",
		Short: "List indexed chunk saves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, worlds, err := persistentDirs(cmd)
			if err != nil {
				return err
			}
			for _, w := range worlds {
				idx, err := openIndex(dataDir, w)
				if err != nil {
					return err
				}
				saves, err := idx.ChunkSaves(cmd.Context(), w)
				_ = idx.Close()
				if err != nil {
					return err
				}
				for _, s := range saves {
					printJSON(cmd.OutOrStdout(), saveRow{World: w, X: s.X, Z: s.Z, Path: s.Path, Tick: s.Tick})
				}
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "sessions",
		Short: "List player sessions reconstructed from join and leave events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, worlds, err := persistentDirs(cmd)
			if err != nil {
				return err
			}
			for _, w := range worlds {
				idx, err := openIndex(dataDir, w)
				if err != nil {
					return err
				}
				sessions, err := idx.Sessions(cmd.Context(), w)
				_ = idx.Close()
				if err != nil {
					return err
				}
				for _, s := range sessions {
					printJSON(cmd.OutOrStdout(), sessionRow{
						World:    w, Player: s.Player, Name: s.Name,
						JoinTick: s.JoinTick, LeftTick: s.LeftTick, Open: s.Open,
					})
				}
			}
			return nil
		},
	})
	return cmd
}
