// Package session runs one client connection: it authenticates the peer,
// attaches it to the hub and pumps frames in both directions.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// ErrFrameTooLarge is returned by a Conn when a peer sends a frame above the
// configured size. The connection cannot be resynchronized afterwards.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

var (
	errBye              = errors.New("client said bye")
	errNotAuthenticated = errors.New("frame before authentication")
	errDropped          = errors.New("session dropped by hub")
)

// Conn is a framed, bidirectional client connection. WriteFrame must be safe
// to call from two goroutines and Close must tolerate repeated calls.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	RemoteAddr() string
	Close() error
}

// Authenticator verifies or creates accounts.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
}

// Config tunes per-connection behavior.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// RateLimit caps inbound frames per minute. Zero disables the limit.
	RateLimit int
}

// Handler serves connections against a shared hub.
type Handler struct {
	hub  *core.Hub
	auth Authenticator
	cfg  Config
	log  *zerolog.Logger
}

// NewHandler builds a connection handler.
func NewHandler(hub *core.Hub, authenticator Authenticator, cfg Config, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Handler{hub: hub, auth: authenticator, cfg: cfg, log: logger}
}

// Serve runs conn until the peer leaves, the hub drops it or ctx ends. It
// closes conn before returning. Ordinary disconnects yield a nil error.
func (h *Handler) Serve(ctx context.Context, conn Conn) error {
	defer conn.Close()

	log := h.log.With().Str("remote_addr", conn.RemoteAddr()).Logger()
	limiter := newRateLimiter(h.cfg.RateLimit, time.Minute)

	client, err := h.authenticate(ctx, conn, limiter, &log)
	if err != nil {
		return h.finish(err, &log)
	}

	log = log.With().Str("session_id", client.ID).Str("user", client.Name).Logger()
	return h.finish(h.run(ctx, conn, client, limiter, &log), &log)
}

func (h *Handler) finish(err error, log *zerolog.Logger) error {
	switch {
	case err == nil,
		errors.Is(err, errBye),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled):
		log.Debug().Msg("connection closed")
		return nil
	case errors.Is(err, errNotAuthenticated):
		log.Info().Msg("closing unauthenticated connection")
		return nil
	case errors.Is(err, errDropped):
		log.Info().Msg("session dropped")
		return nil
	default:
		log.Warn().Err(err).Msg("connection closed with error")
		return err
	}
}

// authenticate loops until the peer logs in or registers. Failed attempts
// are answered and may be retried; any other frame type ends the connection.
func (h *Handler) authenticate(ctx context.Context, conn Conn, limiter *rateLimiter, log *zerolog.Logger) (*core.Client, error) {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				_ = h.write(ctx, conn, errorFrame(core.ErrCodeInvalidFrame, "frame too large"))
			}
			return nil, err
		}
		if !limiter.allow() {
			if err := h.write(ctx, conn, errorFrame(core.ErrCodeRateLimited, "too many requests")); err != nil {
				return nil, err
			}
			continue
		}

		in, err := proto.Decode(frame)
		if err != nil {
			if err := h.write(ctx, conn, errorFrame(core.ErrCodeInvalidFrame, err.Error())); err != nil {
				return nil, err
			}
			continue
		}
		if in.Type != proto.InboundTypeAuth {
			_ = h.write(ctx, conn, errorFrame(core.ErrCodeNotAuthenticated, "authenticate first"))
			return nil, errNotAuthenticated
		}

		name, code, msg := h.credentials(ctx, in, log)
		if code != "" {
			if err := h.write(ctx, conn, errorFrame(code, msg)); err != nil {
				return nil, err
			}
			continue
		}

		client := core.NewClient(name, conn.RemoteAddr(), h.cfg.SendBuffer)
		if err := h.hub.Attach(client); err != nil {
			code, msg := core.ErrCodeInternal, err.Error()
			var ce *core.CoreError
			if errors.As(err, &ce) {
				code, msg = ce.Code, ce.Message
			}
			if err := h.write(ctx, conn, errorFrame(code, msg)); err != nil {
				return nil, err
			}
			continue
		}
		log.Info().Str("user", name).Str("action", in.Action).Msg("authenticated")
		return client, nil
	}
}

// credentials runs the auth action. A non-empty code reports a failure.
func (h *Handler) credentials(ctx context.Context, in *proto.Inbound, log *zerolog.Logger) (name, code, msg string) {
	var err error
	switch in.Action {
	case proto.AuthActionLogin:
		name, err = h.auth.Login(ctx, in.Username, in.Password)
	case proto.AuthActionRegister:
		name, err = h.auth.Register(ctx, in.Username, in.Password)
	default:
		return "", core.ErrCodeBadRequest, "action must be login or register"
	}
	if err == nil {
		return name, "", ""
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		code = core.ErrCodeAuthFailed
	case errors.Is(err, auth.ErrUserExists):
		code = core.ErrCodeUserExists
	case errors.Is(err, auth.ErrInvalidUsername):
		code = core.ErrCodeInvalidUsername
	case errors.Is(err, auth.ErrInvalidPassword):
		code = core.ErrCodeInvalidPassword
	default:
		log.Error().Err(err).Str("action", in.Action).Msg("credential store failure")
		return "", core.ErrCodeInternal, "authentication is temporarily unavailable"
	}
	log.Info().Str("username", in.Username).Str("action", in.Action).Str("code", code).Msg("authentication rejected")
	return "", code, err.Error()
}

func (h *Handler) run(ctx context.Context, conn Conn, client *core.Client, limiter *rateLimiter, log *zerolog.Logger) error {
	defer h.hub.Detach(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter, log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err := <-errCh
	cancel()
	h.hub.Detach(client)
	_ = conn.Close() // unblocks a pending read
	<-errCh
	return err
}

func (h *Handler) readLoop(ctx context.Context, conn Conn, client *core.Client, limiter *rateLimiter, log *zerolog.Logger) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				_ = h.write(ctx, conn, errorFrame(core.ErrCodeInvalidFrame, "frame too large"))
			}
			return err
		}
		if !limiter.allow() {
			log.Debug().Msg("rate limited")
			if err := h.write(ctx, conn, errorFrame(core.ErrCodeRateLimited, "too many requests")); err != nil {
				return err
			}
			continue
		}

		in, err := proto.Decode(frame)
		if err != nil {
			if err := h.write(ctx, conn, errorFrame(core.ErrCodeInvalidFrame, err.Error())); err != nil {
				return err
			}
			continue
		}
		if in.Type == proto.InboundTypeBye {
			return errBye
		}

		cmd, cerr := inboundToCommand(in)
		if cerr != nil {
			if err := h.write(ctx, conn, errorFrame(cerr.Code, cerr.Message)); err != nil {
				return err
			}
			continue
		}
		h.hub.Handle(client, cmd)
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-client.Done():
			return errDropped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Handler) write(ctx context.Context, conn Conn, v any) error {
	frame, err := proto.Encode(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return conn.WriteFrame(ctx, frame)
}
