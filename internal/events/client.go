package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Таймауты WebSocket-соединения.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client — одно WebSocket-соединение подписчика.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	remote string

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
		remote: conn.RemoteAddr().String(),
	}
}

// close закрывает соединение. Идемпотентен.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// trySend кладёт сообщение в исходящий буфер без блокировки.
// false — буфер полон или соединение закрыто.
func (c *client) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// writePump пишет исходящие сообщения и пинги в соединение.
// Выход из цикла означает закрытие соединения.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
