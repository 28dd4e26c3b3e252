package http

import (
	"context"
	"io"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/session"
)

// NewWSHandler upgrades requests to WebSocket and runs a chat session on
// each. Every text message carries one frame.
func NewWSHandler(sessions *session.Handler, maxFrame int, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("ws accept error")
			return
		}
		if maxFrame > 0 {
			conn.SetReadLimit(int64(maxFrame))
		}

		_ = sessions.Serve(c.Request.Context(), &wsConn{conn: conn, remote: c.Request.RemoteAddr})
	}
}

// wsConn adapts a WebSocket connection to session.Conn.
type wsConn struct {
	conn      *websocket.Conn
	remote    string
	closeOnce sync.Once
}

func (w *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, io.EOF
			case websocket.StatusMessageTooBig:
				return nil, session.ErrFrameTooLarge
			}
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (w *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, frame)
}

func (w *wsConn) RemoteAddr() string {
	return w.remote
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.conn.Close(websocket.StatusNormalClosure, "closing")
	})
	return err
}
