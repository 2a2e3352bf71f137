package ws

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ClientConfig struct {
	WriteWait     time.Duration
	PongWait      time.Duration
	PingInterval  time.Duration
	MaxFrameBytes int64
	SendBuffer    int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
		PingInterval:  30 * time.Second,
		MaxFrameBytes: 8192,
		SendBuffer:    256,
	}
}

// UserClient is one websocket connection. AuthUserId is the user proven by
// the connection's token, empty when auth is disabled; the identified user
// lives in the presence registry.
type UserClient struct {
	Id         string
	AuthUserId string
	hub        IHub
	conn       *websocket.Conn
	send       chan []byte
	cfg        ClientConfig
}

func NewClient(authUserId string, hub IHub, conn *websocket.Conn, cfg ClientConfig) *UserClient {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultClientConfig().SendBuffer
	}
	return &UserClient{
		Id:         uuid.NewString(),
		AuthUserId: authUserId,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		cfg:        cfg,
	}
}

// ReadPump hands every inbound frame to handle, one at a time, until the
// connection fails. It then unregisters the client.
func (c *UserClient) ReadPump(handle func(data []byte)) {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error on %s: %v", c.Id, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		handle(data)
	}
}

// WritePump drains the send channel to the socket and keeps the peer alive
// with pings. It exits when the hub closes the channel or a write fails.
func (c *UserClient) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
