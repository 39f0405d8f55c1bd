package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/multiworld"
	"voxelforge.io/internal/sim/world"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	maxFrameSize = 1 << 20
)

type Server struct {
	mgr    *multiworld.Manager
	tuning config.Tuning
	log    *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(mgr *multiworld.Manager, tuning config.Tuning, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		mgr:    mgr,
		tuning: tuning,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameSize)

		sess := newSession(uuid.NewString(), s.tuning.OutboundQueue)
		log := s.log.With(zap.String("session", sess.id))
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go s.writeLoop(ctx, conn, sess, log)

		c := &client{srv: s, conn: conn, sess: sess, log: log}
		c.readLoop(ctx)

		sess.close()
		if c.world != "" {
			s.mgr.Leave(c.world, sess.id)
		}
		log.Debug("session closed")
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session, log *zap.Logger) {
	defer sess.close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.done:
			return
		case msg := <-sess.out:
			b, err := protocol.Encode(msg)
			if err != nil {
				log.Warn("encode failed", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// client is the reader side of one connection. world is the name of the world
// the session is currently in, empty before the first Join.
type client struct {
	srv   *Server
	conn  *websocket.Conn
	sess  *session
	log   *zap.Logger
	world string
}

func (c *client) readLoop(ctx context.Context) {
	limits := c.srv.tuning.RateLimits
	limiter := rate.NewLimiter(rate.Limit(limits.InboundPerSec), limits.InboundBurst)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.sess.closed() {
			return
		}
		if !limiter.Allow() {
			c.log.Debug("frame dropped", zap.String("code", protocol.ErrRateLimit))
			continue
		}
		msg, err := protocol.Decode(b)
		if err != nil {
			c.log.Debug("bad frame", zap.String("code", protocol.ErrProtoBadRequest), zap.Error(err))
			continue
		}
		switch msg.Type {
		case protocol.TypeJoin:
			if !c.join(ctx, msg) {
				return
			}
		case protocol.TypeLeave:
			if c.world != "" {
				c.srv.mgr.Leave(c.world, c.sess.id)
				c.world = ""
			}
		default:
			if c.world == "" {
				c.log.Debug("frame before join", zap.String("code", protocol.ErrNotJoined), zap.String("type", msg.Type))
				continue
			}
			if err := c.srv.mgr.Route(ctx, c.world, c.sess.id, msg); err != nil {
				c.log.Warn("route failed", zap.String("world", c.world), zap.Error(err))
			}
		}
	}
}

// join enters the world named by msg.Text, leaving the current one first. It
// reports false when the connection should be closed.
func (c *client) join(ctx context.Context, msg protocol.Message) bool {
	var req protocol.JoinRequest
	if len(msg.JSON) > 0 {
		if err := json.Unmarshal(msg.JSON, &req); err != nil {
			c.log.Debug("bad join payload", zap.Error(err))
			return true
		}
	}
	target := msg.Text
	if c.srv.mgr.Get(target) == nil {
		c.closeWith(protocol.ErrWorldNotFound)
		return false
	}
	if c.world != "" {
		c.srv.mgr.Leave(c.world, c.sess.id)
		c.world = ""
	}
	_, err := c.srv.mgr.Join(ctx, target, world.JoinRequest{
		ID:           c.sess.id,
		Name:         req.Name,
		RenderRadius: req.RenderRadius,
		Out:          c.sess,
	})
	if err != nil {
		code := protocol.ErrWorldBusy
		if errors.Is(err, multiworld.ErrUnknownWorld) {
			code = protocol.ErrWorldNotFound
		}
		c.log.Warn("join failed", zap.String("world", target), zap.Error(err))
		c.closeWith(code)
		return false
	}
	c.world = target
	c.log.Info("session joined", zap.String("world", target), zap.String("name", req.Name))
	return true
}

func (c *client) closeWith(code string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}
