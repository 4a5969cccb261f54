package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
	pkgcontext "celldock/pkg/context"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var errConnectionClosed = errors.New("websocket connection closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Sessions are token protected
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one websocket bound to a session. Cells received on it execute
// strictly one after another.
type wsConn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// ServeWebSocket upgrades the request and serves cells until the peer leaves
func (h *Handlers) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := pkgcontext.LoggerFromContext(r.Context())

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("session_id", session.ID)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.writePump()
	c.readLoop(ctx, session)
}

// emit queues one message for the write pump
func (c *wsConn) emit(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnectionClosed
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readLoop reads client messages and executes cells in order
func (c *wsConn) readLoop(ctx context.Context, session *Session) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Executions can outlast pongWait; pongs are handled by the next read
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.protocolError("message is not valid JSON")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		if msg.Type != messageTypeExecute {
			c.protocolError("unsupported message type " + msg.Type)
			continue
		}

		reply, err := session.Kernel.Execute(ctx, msg.Code, emitWriter{emit: c.emit})
		if err != nil {
			c.logger.Warn("Cell execution failed", zap.Error(err))
		}
		if err := c.emit(replyMessage(reply, err, session.Kernel.Info().ImageID)); err != nil {
			return
		}
	}
}

func (c *wsConn) protocolError(message string) {
	_ = c.emit(ErrorMessage{
		Type:  messageTypeError,
		Error: ErrorBody{Code: string(celldockerrors.ErrorCodeInternal), Message: message},
	})
}

// writePump pumps queued messages to the websocket connection
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
