package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/domain"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// maxFrameBytes bounds inbound frames. The largest legal message
	// content is 10k runes, which fits with room to spare.
	maxFrameBytes = 64 << 10
)

// client is one upgraded connection. The supervisor owns the read side;
// everything outbound goes through the send queue so socket writes happen
// on a single goroutine.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
	reason    domain.Code
}

func newClient(conn *websocket.Conn, userID string, sendBuffer int, logger zerolog.Logger) *client {
	return &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *client) ID() string     { return c.id }
func (c *client) UserID() string { return c.userID }

// Enqueue offers a frame without blocking; false means the queue is full.
func (c *client) Enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Terminate asks the write pump to drain the queue and close the socket.
// Safe to call from any goroutine, any number of times.
func (c *client) Terminate(code domain.Code) {
	c.closeOnce.Do(func() {
		c.reason = code
		close(c.done)
	})
}

// configureRead arms the read deadline and keeps pongs refreshing it.
func (c *client) configureRead(pongWait time.Duration) {
	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// writePump owns every write to the socket: queued frames, heartbeat pings,
// and the final close frame. It exits when the peer breaks or Terminate
// fires, closing the connection either way so the read side unblocks.
func (c *client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.drainAndClose()
			return
		}
	}
}

// drainAndClose flushes queued frames, then sends the close frame carrying
// the termination reason.
func (c *client) drainAndClose() {
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			status := websocket.CloseNormalClosure
			if c.reason != "" {
				status = websocket.ClosePolicyViolation
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(status, string(c.reason))); err != nil {
				c.logger.Debug().Err(err).Msg("write close frame")
			}
			return
		}
	}
}
