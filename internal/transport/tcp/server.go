package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/session"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("tcp: server closed")

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts TCP connections and hands each one to a session handler.
type Server struct {
	Addr     string
	MaxFrame int

	handler *session.Handler
	log     *zerolog.Logger

	// baseCtx is the parent of every connection context. It ends only on
	// Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[*lineConn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer builds a listener for addr.
func NewServer(addr string, maxFrame int, handler *session.Handler, logger *zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Addr:     addr,
		MaxFrame: maxFrame,
		handler:  handler,
		log:      logger,
		baseCtx:  ctx,
		cancel:   cancel,
		conns:    make(map[*lineConn]struct{}),
	}
}

// ListenAndServe listens on s.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; ErrServerClosed after a clean shutdown. Accept failures
// other than a closed listener are retried with a capped backoff and leave
// open sessions untouched.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-s.baseCtx.Done():
				return ErrServerClosed
			}
			continue
		}
		delay = 0

		lc := newLineConn(conn, s.MaxFrame)
		if !s.track(lc) {
			_ = conn.Close()
			return ErrServerClosed
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(lc)
			s.log.Debug().Str("remote_addr", lc.RemoteAddr()).Msg("connection accepted")
			_ = s.handler.Serve(s.baseCtx, lc)
		}()
	}
}

// ListenAddr returns the bound listener address, or nil before Serve.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, closes every open connection and waits for
// their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.cancel()
	for lc := range s.conns {
		_ = lc.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("tcp listener stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(lc *lineConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[lc] = struct{}{}
	return true
}

func (s *Server) untrack(lc *lineConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, lc)
}
