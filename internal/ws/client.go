package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/freelance-marketplace/internal/goroutine"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4 * 1024
	sendBuffer   = 16
)

// Client одно подключение пользователя. Канал только на отправку:
// входящие кадры читаются ради pong и обнаружения закрытия.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	userID    uuid.UUID
	send      chan []byte
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// Run блокирует до закрытия соединения или отмены ctx.
func (c *Client) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	goroutine.SafeGo(c.writeLoop)
	c.readLoop()
}

// Close снимает клиента с хаба и закрывает соединение один раз.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readLoop() {
	defer c.Close()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.WithError(err).WithField("user_id", c.userID).Debug("ws: соединение прервано")
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		var (
			kind    = websocket.TextMessage
			payload []byte
		)

		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			payload = msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		if err := c.write(kind, payload); err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, payload)
}
