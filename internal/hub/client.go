package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string // 连接标识，服务端生成，生命周期内不变

	// 用于向此客户端发送消息的缓冲通道；由 Hub 在注销时关闭
	send chan []byte

	// 以下两个字段由 Hub 持有 roomsMu 时读写
	rooms  map[string]bool // 该连接订阅的房间集合
	closed bool
}

// NewClient 创建一个新的 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		id:    id,
		send:  make(chan []byte, 256),
		rooms: make(map[string]bool),
	}
}

// ID 返回连接标识。
func (c *Client) ID() string { return c.id }

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// CloseConn 关闭底层 WebSocket 连接。
func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// ReadPump 把消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行，连接断开时负责触发注销。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("conn_id", c.id).Warn("Timeout sending unregister message to Hub channel")
		}
		c.CloseConn()
		logrus.WithField("conn_id", c.id).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("conn_id", c.id)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			logrus.WithField("conn_id", c.id).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		eventMsg := HubMessage{
			Type:    "event",
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，处理不过来就丢弃这条消息
		select {
		case c.hub.messageChan <- eventMsg:
		default:
			logrus.WithField("conn_id", c.id).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 把消息从 send 通道泵送到 WebSocket 连接，
// 并定期发送 Ping 保活。它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.CloseConn()
		logrus.WithField("conn_id", c.id).Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
