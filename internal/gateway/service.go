package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/avlgate/internal/observability"
	"github.com/danmuck/avlgate/internal/protocol/session"
	"github.com/rs/zerolog"
)

// Service is the tracker-facing TCP endpoint.
type Service struct {
	cfg    Config
	router session.Router
	logger zerolog.Logger

	connsMu  sync.Mutex
	conns    map[net.Conn]*connState
	handlers sync.WaitGroup

	activeCount   atomic.Int64
	acceptedCount atomic.Uint64
	listening     atomic.Bool
}

// NewService builds a tracker listener that hands each connection its own
// session over router.
func NewService(cfg Config, router session.Router, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg.WithDefaults(),
		router: router,
		logger: logger.With().Str("component", "gateway").Logger(),
		conns:  make(map[net.Conn]*connState),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return s.Serve(ctx, ln)
}

// Serve accepts trackers on an existing listener. It returns once ctx is done
// and every connection handler has exited.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.cfg.Validate(); err != nil {
		_ = ln.Close()
		return err
	}
	s.listening.Store(true)
	defer s.listening.Store(false)

	stop := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.closeAllConns()
	}()
	defer func() {
		close(stop)
		<-watchDone
		s.handlers.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		state := s.trackConn(conn)
		if ctx.Err() != nil {
			_ = conn.Close()
		}
		s.handlers.Add(1)
		go s.handleConn(ctx, conn, state)
	}
}

// Listening reports whether Serve is accepting connections.
func (s *Service) Listening() bool {
	return s.listening.Load()
}

// ActiveConnections returns the number of open tracker connections.
func (s *Service) ActiveConnections() int64 {
	return s.activeCount.Load()
}

// AcceptedConnections returns the total accepted since start.
func (s *Service) AcceptedConnections() uint64 {
	return s.acceptedCount.Load()
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn, state *connState) {
	defer s.handlers.Done()
	defer conn.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	logger := s.logger.With().Str("remote", remote).Logger()
	observability.ConnectionOpened()
	active := s.activeCount.Add(1)
	s.acceptedCount.Add(1)
	logger.Debug().Int64("active", active).Msg("tracker connected")
	defer func() {
		observability.ConnectionClosed()
		remaining := s.activeCount.Add(-1)
		logger.Debug().Int64("active", remaining).Msg("tracker disconnected")
	}()

	sess := session.New(s.router, s.cfg.Session, logger)
	buf := make([]byte, s.cfg.ReadBufferBytes)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, readErr := conn.Read(buf)
		if n > 0 {
			res := sess.Feed(ctx, buf[:n])
			state.observe(sess, res)
			if len(res.Reply) > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				if _, err := conn.Write(res.Reply); err != nil {
					logger.Debug().Err(err).Msg("reply write failed")
					return
				}
			}
			if res.Close {
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, net.ErrClosed) && ctx.Err() == nil {
				logger.Debug().Err(readErr).Msg("tracker read ended")
			}
			return
		}
	}
}

// Sessions returns a snapshot of live connections ordered by connect time.
func (s *Service) Sessions() []SessionInfo {
	s.connsMu.Lock()
	out := make([]SessionInfo, 0, len(s.conns))
	for _, state := range s.conns {
		out = append(out, state.snapshot())
	}
	s.connsMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].Remote < out[j].Remote
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (s *Service) trackConn(conn net.Conn) *connState {
	state := newConnState(conn.RemoteAddr().String(), time.Now())
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = state
	return state
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
