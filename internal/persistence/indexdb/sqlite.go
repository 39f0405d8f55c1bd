package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelforge.io/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a secondary, queryable index over chunk saves and session
// events. Writes are queued and committed in batches by a single goroutine;
// when the queue is full requests are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	mu     sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed bool

	dropped atomic.Uint64
	written atomic.Uint64
}

type reqKind int

const (
	reqChunkSave reqKind = iota + 1
	reqEvent
	reqFlush
)

type req struct {
	kind reqKind

	save  world.ChunkSave
	event world.Event
	ack   chan struct{}
}

// Session is one join..leave interval of a player in a world.
type Session struct {
	Player   string
	Name     string
	JoinTick uint64
	LeftTick uint64
	Open     bool
}

type Stats struct {
	Written uint64
	Dropped uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_saves (
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			path TEXT NOT NULL,
			tick INTEGER NOT NULL,
			saves INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (world, x, z)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			world TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			player TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			voxel INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (world, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_player_tick ON events(player, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_pos_tick ON events(world, x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			world TEXT NOT NULL,
			player TEXT NOT NULL,
			name TEXT NOT NULL,
			join_tick INTEGER NOT NULL,
			left_tick INTEGER,
			PRIMARY KEY (world, player, join_tick)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		// The chunk files and event logs remain the source of truth.
		s.dropped.Add(1)
	}
}

// RecordChunkSave implements world.ChunkIndex.
func (s *SQLiteIndex) RecordChunkSave(rec world.ChunkSave) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqChunkSave, save: rec})
}

// WriteEvent implements world.EventLogger. It never reports the drop of a
// request; see Stats.
func (s *SQLiteIndex) WriteEvent(e world.Event) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqEvent, event: e})
	return nil
}

// Flush blocks until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("indexdb: closed")
	}
	select {
	case s.ch <- req{kind: reqFlush, ack: ack}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{Written: s.written.Load(), Dropped: s.dropped.Load()}
}

func (s *SQLiteIndex) ChunkSaves(ctx context.Context, worldName string) ([]world.ChunkSave, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, z, path, tick FROM chunk_saves WHERE world = ? ORDER BY x, z`, worldName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.ChunkSave
	for rows.Next() {
		rec := world.ChunkSave{World: worldName}
		var tick int64
		if err := rows.Scan(&rec.X, &rec.Z, &rec.Path, &tick); err != nil {
			return nil, err
		}
		rec.Tick = uint64(tick)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Sessions(ctx context.Context, worldName string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player, name, join_tick, left_tick FROM sessions WHERE world = ? ORDER BY join_tick, player`, worldName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var (
			ss   Session
			join int64
			left sql.NullInt64
		)
		if err := rows.Scan(&ss.Player, &ss.Name, &join, &left); err != nil {
			return nil, err
		}
		ss.JoinTick = uint64(join)
		ss.Open = !left.Valid
		if left.Valid {
			ss.LeftTick = uint64(left.Int64)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	upsertSave, _ := s.db.Prepare(`INSERT INTO chunk_saves(world,x,z,path,tick) VALUES(?,?,?,?,?)
		ON CONFLICT(world,x,z) DO UPDATE SET path=excluded.path, tick=excluded.tick, saves=saves+1`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(world,tick,seq,kind,player,x,y,z,voxel,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	openSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(world,player,name,join_tick,left_tick) VALUES(?,?,?,?,NULL)`)
	closeSession, _ := s.db.Prepare(`UPDATE sessions SET left_tick=? WHERE world=? AND player=? AND left_tick IS NULL`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertSave, insertEvent, openSession, closeSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
		lastTick      = map[string]uint64{}
		seq           = map[string]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		s.written.Add(1)
		return true
	}

	handle := func(r req) {
		if r.kind == reqFlush {
			commit()
			close(r.ack)
			return
		}
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqChunkSave:
			sv := r.save
			exec(upsertSave, sv.World, sv.X, sv.Z, sv.Path, int64(sv.Tick))
		case reqEvent:
			e := r.event
			if e.Tick != lastTick[e.World] {
				lastTick[e.World] = e.Tick
				seq[e.World] = 0
			}
			n := seq[e.World]
			seq[e.World]++
			raw, _ := json.Marshal(e)
			if !exec(insertEvent, e.World, int64(e.Tick), n, e.Kind, e.Player,
				e.Pos[0], e.Pos[1], e.Pos[2], int64(e.Voxel), string(raw)) {
				return
			}
			switch e.Kind {
			case world.EventJoin:
				exec(openSession, e.World, e.Player, e.Name, int64(e.Tick))
			case world.EventLeave, world.EventEvict:
				exec(closeSession, int64(e.Tick), e.World, e.Player)
			}
		}
		if tx != nil && opCount >= commitEvery {
			commit()
		}
	}

	// The pool holds a single connection, so an idle open tx would block queries.
	idle := time.NewTicker(commitMaxWait / 4)
	defer idle.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-idle.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
