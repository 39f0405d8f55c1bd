package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"voxelforge.io/internal/persistence/chunkfile"
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/terrain"
)

// saver writes chunk snapshots off the world goroutine. A newer snapshot of the
// same chunk replaces a pending older one.
type saver struct {
	dir   string
	world string
	log   *zap.Logger
	index ChunkIndex

	mu      sync.Mutex
	pending map[mathx.Coords2]pendingSave
	// writing holds the batch taken by the current flush until each file lands.
	writing map[mathx.Coords2]pendingSave
	wake    chan struct{}

	saved atomic.Uint64
}

type pendingSave struct {
	chunk *terrain.Chunk
	tick  uint64
}

func newSaver(dir, world string, log *zap.Logger) *saver {
	return &saver{
		dir:     dir,
		world:   world,
		log:     log,
		pending: map[mathx.Coords2]pendingSave{},
		writing: map[mathx.Coords2]pendingSave{},
		wake:    make(chan struct{}, 1),
	}
}

// enqueue takes ownership of snap, which must be a snapshot.
func (s *saver) enqueue(snap *terrain.Chunk, tick uint64) {
	s.mu.Lock()
	s.pending[snap.Coords] = pendingSave{chunk: snap, tick: tick}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) take() []pendingSave {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pendingSave, 0, len(s.pending))
	for k, p := range s.pending {
		out = append(out, p)
		s.writing[k] = p
	}
	s.pending = map[mathx.Coords2]pendingSave{}
	sort.Slice(out, func(i, j int) bool { return out[i].chunk.Coords.Less(out[j].chunk.Coords) })
	return out
}

// flush writes everything pending and returns the first error.
func (s *saver) flush() error {
	var first error
	for _, p := range s.take() {
		c := p.chunk
		path, err := s.write(p)
		s.mu.Lock()
		if cur, ok := s.writing[c.Coords]; ok && cur.chunk == c {
			delete(s.writing, c.Coords)
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Error("chunk save failed", zap.String("chunk", c.ID()), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("save chunk %s: %w", c.ID(), err)
			}
			continue
		}
		s.saved.Add(1)
		if s.index != nil {
			s.index.RecordChunkSave(ChunkSave{World: s.world, X: c.Coords.X, Z: c.Coords.Z, Path: path, Tick: p.tick})
		}
	}
	return first
}

func (s *saver) write(p pendingSave) (string, error) {
	c := p.chunk
	return chunkfile.Save(s.dir, chunkfile.Data{
		X:         c.Coords.X,
		Z:         c.Coords.Z,
		Size:      c.Params.Size,
		MaxHeight: c.Params.MaxHeight,
		Voxels:    c.Voxels.Data,
		Lights:    c.Lights.Data,
	})
}

// lookup returns the newest unwritten snapshot of coords, if any.
func (s *saver) lookup(coords mathx.Coords2) *terrain.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[coords]; ok {
		return p.chunk
	}
	if p, ok := s.writing[coords]; ok {
		return p.chunk
	}
	return nil
}

// run flushes whenever work arrives. Once done is closed it flushes what is
// left and returns; the world loop closes done after its final enqueue.
func (s *saver) run(done <-chan struct{}) error {
	for {
		select {
		case <-done:
			_ = s.flush()
			return nil
		case <-s.wake:
			_ = s.flush()
		}
	}
}

// diskSource feeds saved chunks back into the store when they are first needed.
// Snapshots still queued in the saver win over the file on disk.
type diskSource struct {
	saver *saver
}

func (d diskSource) LoadChunk(coords mathx.Coords2, p terrain.Params) (*terrain.Chunk, error) {
	if snap := d.saver.lookup(coords); snap != nil {
		c := terrain.NewChunkFromArrays(coords, p, snap.Voxels.Data, snap.Lights.Data)
		c.Dirty = true
		return c, nil
	}
	data, err := chunkfile.Load(filepath.Join(d.saver.dir, chunkfile.FileName(coords.X, coords.Z)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data.Size != p.Size || data.MaxHeight != p.MaxHeight {
		return nil, fmt.Errorf("chunk %s: saved as %dx%d, world is %dx%d", coords, data.Size, data.MaxHeight, p.Size, p.MaxHeight)
	}
	return terrain.NewChunkFromArrays(coords, p, data.Voxels, data.Lights), nil
}
