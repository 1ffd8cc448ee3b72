package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/metrics"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 16384

	// WsCloseCodeSessionEnded is sent when the login session behind a connection ends.
	WsCloseCodeSessionEnded = 4001
)

// Connection is one live websocket session of an authenticated user.
// A user may hold any number of connections at once.
type Connection struct {
	ID        string
	UserID    string
	SessionID string

	// conn is nil for in-process connections.
	conn *websocket.Conn

	// send queues frames for WritePump. It is never closed; done signals shutdown instead,
	// so a concurrent multicast can never panic on a closed channel.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int

	// limiter bounds inbound operations.
	limiter *rate.Limiter

	// rooms is the set of rooms this connection joined. Guarded by Registry.mu.
	rooms map[string]struct{}

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func newConnection(id, userID, sessionID string, ws *websocket.Conn, opts Options, m *metrics.Metrics) *Connection {
	limit := rate.Inf
	if opts.OpsPerSecond > 0 {
		limit = rate.Limit(opts.OpsPerSecond)
	}

	return &Connection{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		conn:      ws,
		send:      make(chan []byte, opts.SendQueueSize),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(limit, opts.OpsBurst),
		rooms:     make(map[string]struct{}),
		metrics:   m,
		logger: logx.Logger().With().
			Str("conn_id", id).
			Str("user_id", userID).
			Str("session_id", sessionID).
			Logger(),
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close stops the connection. It is safe to call more than once and from any goroutine.
func (c *Connection) Close() {
	c.CloseWithCode(websocket.CloseNormalClosure)
}

// CloseWithCode stops the connection and tells the client why.
func (c *Connection) CloseWithCode(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// enqueue queues frame for delivery without blocking. Frames for a closed connection, and
// frames that do not fit in a full queue, are dropped.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.metrics.FrameDropped()
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Connection send queue full, dropping frame")
		return false
	}
}

// ReadPump reads frames until the socket fails or the connection is closed, handing each
// frame to handle. Frames are handled one at a time in arrival order.
func (c *Connection) ReadPump(handle func(frame []byte)) {
	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended unexpectedly")
			}
			return
		}

		handle(frame)
	}
}

// WritePump writes queued frames and pings until the connection closes.
// On close it sends a close frame and closes the socket, which also ends ReadPump.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				c.Close()
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.Close()
				return
			}

		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Int("message_type", messageType).Msg("Error writing to connection")
		return false
	}

	return true
}

func (c *Connection) writeClose() {
	msg := websocket.FormatCloseMessage(c.closeCode, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing close frame")
	}
}
