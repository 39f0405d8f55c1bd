// Command bot connects simulated players to a running server. It joins a
// world, wanders around by sending PEER updates and chats now and then.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelforge.io/internal/protocol"
)

type botConfig struct {
	URL          string
	World        string
	Name         string
	RenderRadius int
	MoveEvery    time.Duration
	ChatEvery    time.Duration
	Speed        float64
}

// spawn mirrors the server's default spawn point; INIT does not echo our own position.
var spawn = [3]float64{0, 80, 0}

// botStats is what one bot saw before it stopped.
type botStats struct {
	ID     string
	Frames map[string]int
	Chats  int
}

func main() {
	var (
		url       = flag.String("url", "ws://localhost:4000/ws", "ws url")
		worldName = flag.String("world", "overworld", "world to join")
		name      = flag.String("name", "bot", "player name prefix")
		count     = flag.Int("bots", 1, "number of bots")
		radius    = flag.Int("render_radius", 4, "requested render radius")
		moveEvery = flag.Duration("move_every", 250*time.Millisecond, "PEER update interval")
		chatEvery = flag.Duration("chat_every", 20*time.Second, "chat interval (0 disables)")
		speed     = flag.Float64("speed", 4, "walking speed in blocks per second")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *count; i++ {
		cfg := botConfig{
			URL:          *url,
			World:        *worldName,
			Name:         fmt.Sprintf("%s-%d", *name, i),
			RenderRadius: *radius,
			MoveEvery:    *moveEvery,
			ChatEvery:    *chatEvery,
			Speed:        *speed,
		}
		g.Go(func() error {
			st, err := runBot(gctx, cfg, logger.With(zap.String("bot", cfg.Name)))
			logger.Info("bot stopped", zap.String("bot", cfg.Name), zap.String("id", st.ID), zap.Any("frames", st.Frames))
			return err
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bots failed", zap.Error(err))
	}
}

// runBot drives one connection until ctx ends or the server closes it.
func runBot(ctx context.Context, cfg botConfig, logger *zap.Logger) (botStats, error) {
	st := botStats{Frames: map[string]int{}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return st, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	join := protocol.NewMessage(protocol.TypeJoin).
		WithText(cfg.World).
		WithJSON(protocol.JoinRequest{Name: cfg.Name, RenderRadius: cfg.RenderRadius})
	if err := conn.WriteJSON(join); err != nil {
		return st, fmt.Errorf("send JOIN: %w", err)
	}

	var (
		mu       sync.Mutex
		joinOnce sync.Once
		pos    = spawn
		joined = make(chan struct{})
	)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var m protocol.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			mu.Lock()
			st.Frames[m.Type]++
			if m.Type == protocol.TypeInit {
				var initMsg protocol.InitPayload
				if err := json.Unmarshal(m.JSON, &initMsg); err == nil {
					st.ID = initMsg.ID
					logger.Info("joined", zap.String("id", initMsg.ID), zap.String("world", initMsg.Params.Name),
						zap.Int("render_radius", initMsg.Params.RenderRadius))
				}
				joinOnce.Do(func() { close(joined) })
			}
			mu.Unlock()
		}
	}()

	select {
	case <-joined:
	case err := <-readErr:
		return st, fmt.Errorf("before INIT: %w", err)
	case <-ctx.Done():
		return snapshotStats(&mu, &st), nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	heading := rng.Float64() * 2 * math.Pi
	move := time.NewTicker(cfg.MoveEvery)
	defer move.Stop()
	var chat <-chan time.Time
	if cfg.ChatEvery > 0 {
		t := time.NewTicker(cfg.ChatEvery)
		defer t.Stop()
		chat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return snapshotStats(&mu, &st), nil
		case err := <-readErr:
			return snapshotStats(&mu, &st), fmt.Errorf("read: %w", err)
		case <-move.C:
			heading += (rng.Float64() - 0.5) * 0.6
			step := cfg.Speed * cfg.MoveEvery.Seconds()
			mu.Lock()
			pos[0] += math.Cos(heading) * step
			pos[2] += math.Sin(heading) * step
			peer := protocol.PeerProtocol{
				Name:     cfg.Name,
				Position: pos,
				Rotation: [4]float64{0, math.Sin(heading / 2), 0, math.Cos(heading / 2)},
			}
			mu.Unlock()
			msg := protocol.NewMessage(protocol.TypePeer)
			msg.Peers = []protocol.PeerProtocol{peer}
			if err := conn.WriteJSON(msg); err != nil {
				return snapshotStats(&mu, &st), fmt.Errorf("send PEER: %w", err)
			}
		case <-chat:
			mu.Lock()
			text := fmt.Sprintf("at %.0f,%.0f,%.0f", pos[0], pos[1], pos[2])
			st.Chats++
			mu.Unlock()
			if err := conn.WriteJSON(protocol.NewMessage(protocol.TypeChat).WithText(text)); err != nil {
				return snapshotStats(&mu, &st), fmt.Errorf("send CHAT: %w", err)
			}
		}
	}
}

func snapshotStats(mu *sync.Mutex, st *botStats) botStats {
	mu.Lock()
	defer mu.Unlock()
	out := botStats{ID: st.ID, Chats: st.Chats, Frames: make(map[string]int, len(st.Frames))}
	for k, v := range st.Frames {
		out.Frames[k] = v
	}
	return out
}
