package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"voxelforge.io/internal/sim/world"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestSQLiteIndex_ChunkSavesUpsert(t *testing.T) {
	idx, _ := openTemp(t)
	ctx := context.Background()

	idx.RecordChunkSave(world.ChunkSave{World: "overworld", X: 1, Z: 0, Path: "chunks/1_0.json", Tick: 10})
	idx.RecordChunkSave(world.ChunkSave{World: "overworld", X: -1, Z: 2, Path: "chunks/-1_2.json", Tick: 10})
	idx.RecordChunkSave(world.ChunkSave{World: "overworld", X: 1, Z: 0, Path: "chunks/1_0.json", Tick: 40})
	idx.RecordChunkSave(world.ChunkSave{World: "nether", X: 0, Z: 0, Path: "chunks/0_0.json", Tick: 5})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := idx.ChunkSaves(ctx, "overworld")
	if err != nil {
		t.Fatalf("ChunkSaves: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %+v", got)
	}
	if got[0].X != -1 || got[0].Z != 2 {
		t.Fatalf("rows not ordered by coords: %+v", got)
	}
	if got[1].Tick != 40 {
		t.Fatalf("upsert kept stale tick: %+v", got[1])
	}
	if st := idx.Stats(); st.Written != 4 || st.Dropped != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSQLiteIndex_SessionsFromEvents(t *testing.T) {
	idx, path := openTemp(t)
	ctx := context.Background()

	events := []world.Event{
		{World: "overworld", Tick: 1, Kind: world.EventJoin, Player: "a"},
		{World: "overworld", Tick: 1, Kind: world.EventJoin, Player: "b"},
		{World: "overworld", Tick: 3, Kind: world.EventChat, Player: "a", Name: "alice", Text: "hi"},
		{World: "overworld", Tick: 4, Kind: world.EventEdit, Player: "a", Pos: [3]int{1, 70, -2}, Voxel: 7},
		{World: "overworld", Tick: 9, Kind: world.EventLeave, Player: "a", Name: "alice"},
		{World: "overworld", Tick: 12, Kind: world.EventEvict, Player: "b"},
		{World: "overworld", Tick: 15, Kind: world.EventJoin, Player: "a"},
	}
	for _, e := range events {
		if err := idx.WriteEvent(e); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sessions, err := idx.Sessions(ctx, "overworld")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %+v", sessions)
	}
	if sessions[0].Player != "a" || sessions[0].Open || sessions[0].LeftTick != 9 {
		t.Fatalf("first session = %+v", sessions[0])
	}
	if sessions[1].Player != "b" || sessions[1].LeftTick != 12 {
		t.Fatalf("evicted session = %+v", sessions[1])
	}
	if !sessions[2].Open || sessions[2].JoinTick != 15 {
		t.Fatalf("rejoin session = %+v", sessions[2])
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var (
		x, y, z int
		voxel   int64
	)
	row := db.QueryRow(`SELECT x,y,z,voxel FROM events WHERE kind='edit'`)
	if err := row.Scan(&x, &y, &z, &voxel); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if x != 1 || y != 70 || z != -2 || voxel != 7 {
		t.Fatalf("edit row mismatch: %d %d %d %d", x, y, z, voxel)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE world='overworld' AND tick=1`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("same-tick events collapsed: %d", n)
	}
}

func TestSQLiteIndex_ClosedIgnoresWrites(t *testing.T) {
	idx, _ := openTemp(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.RecordChunkSave(world.ChunkSave{World: "overworld"})
	if err := idx.WriteEvent(world.Event{World: "overworld", Kind: world.EventJoin}); err != nil {
		t.Fatalf("WriteEvent after close: %v", err)
	}
	if err := idx.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush on closed index to fail")
	}
	var nilIdx *SQLiteIndex
	nilIdx.RecordChunkSave(world.ChunkSave{})
}
