// Package hub 维护活跃的 WebSocket 连接、房间订阅关系，
// 并把事件投递给房间内的所有连接（连接注册表 + 房间广播层）。
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AlexCabreraD/retrospective-server/internal/dto"
	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用。
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型。
type HubMessage struct {
	Type    string  // "register" / "unregister" / "event"
	Client  *Client // 消息来源的客户端
	RawData []byte  // 仅用于 event（原始 WebSocket 消息）
}

// Hub 维护连接注册表（connectionID -> Client）和房间成员关系
// （boardCode -> 订阅的客户端集合），并协调入站事件的处理。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 保护 rooms / conns 的读写锁
	roomsMu sync.RWMutex
	// map[boardCode]map[*Client]bool
	rooms map[string]map[*Client]bool
	// map[connectionID]*Client
	conns map[string]*Client

	// 注入的 Service，处理看板业务逻辑
	boardService *service.BoardService

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHub 创建并返回一个新的 Hub 实例。
func NewHub(boardService *service.BoardService) *Hub {
	if boardService == nil {
		panic("BoardService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:  make(chan HubMessage, 512),
		rooms:        make(map[string]map[*Client]bool),
		conns:        make(map[string]*Client),
		boardService: boardService,
		stopCh:       make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case <-h.stopCh:
			h.closeAllClients()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "event":
				// 异步处理客户端事件，避免阻塞 Hub 主循环；
				// 同一看板上的串行化由 BoardService 的 per-board 锁保证。
				go h.handleClientEvent(msg)
			default:
				log.Warnf("Received unknown hub message type: %s", msg.Type)
			}
		}
	}
}

// Stop 停止 Hub 的事件循环并关闭所有客户端连接。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 false 表示队列已满或 Hub 已停止，消息被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.stopCh:
		return false
	default:
	}

	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// registerClient 把连接登记到注册表。此时它还没有订阅任何房间。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.roomsMu.Lock()
	client.closed = false
	h.conns[client.ID()] = client
	total := len(h.conns)
	h.roomsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id":     client.ID(),
		"total_conns": total,
	}).Info("Client registered to Hub")
}

// unregisterClient 在连接断开时做清理：退订所有房间、移出注册表、
// 关闭发送通道（这会让该客户端的 WritePump 退出）。
// 语义层的 Board 成员记录刻意不动。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}

	h.roomsMu.Lock()
	_, known := h.conns[client.ID()]
	if !known || client.closed {
		h.roomsMu.Unlock()
		return
	}
	delete(h.conns, client.ID())
	for code := range client.rooms {
		h.removeFromRoomLocked(client, code)
	}
	client.closed = true
	h.roomsMu.Unlock()

	close(client.send)
	logrus.WithField("conn_id", client.ID()).Info("Client unregistered from Hub")
}

// Subscribe 把连接加入 boardCode 对应的房间。幂等：重复订阅没有额外效果。
func (h *Hub) Subscribe(client *Client, code string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if client.closed {
		return
	}
	room, ok := h.rooms[code]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[code] = room
	}
	if room[client] {
		return
	}
	room[client] = true
	client.rooms[code] = true

	logrus.WithFields(logrus.Fields{
		"conn_id":    client.ID(),
		"board_code": code,
		"room_size":  len(room),
	}).Debug("Client subscribed to room")
}

// Unsubscribe 把连接移出单个房间。
func (h *Hub) Unsubscribe(client *Client, code string) {
	h.roomsMu.Lock()
	h.removeFromRoomLocked(client, code)
	h.roomsMu.Unlock()
}

// removeFromRoomLocked 在持有 roomsMu 写锁的前提下移除房间成员，
// 房间空了就删掉房间记录（room_exists 依赖这一点）。
func (h *Hub) removeFromRoomLocked(client *Client, code string) {
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(room, client)
	delete(client.rooms, code)
	if len(room) == 0 {
		delete(h.rooms, code)
	}
}

// RoomMembers 返回当前订阅该房间的连接 ID 列表。
// 房间不存在或没有订阅者时返回空列表，不是错误。
func (h *Hub) RoomMembers(code string) []string {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	room := h.rooms[code]
	members := make([]string, 0, len(room))
	for client := range room {
		members = append(members, client.ID())
	}
	return members
}

// InRoom 判断连接是否订阅了某个房间。
func (h *Hub) InRoom(client *Client, code string) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return client.rooms[code]
}

// Broadcast 把事件投递给房间内的所有连接。尽力而为：
// 发送通道满或连接已关闭的客户端直接跳过，不重试也不向发送方报告。
func (h *Hub) Broadcast(code, event string, payload any) {
	message, err := marshalEnvelope(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal broadcast message")
		return
	}

	// 先在锁内做一份接收者快照，避免发送时长时间持有锁
	h.roomsMu.RLock()
	room := h.rooms[code]
	recipients := make([]*Client, 0, len(room))
	for client := range room {
		if !client.closed {
			recipients = append(recipients, client)
		}
	}
	h.roomsMu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"board_code":      code,
		"event":           event,
		"recipient_count": len(recipients),
	})
	logCtx.Debug("Broadcasting event to room")

	for _, client := range recipients {
		if !h.safeSend(client, message) {
			logCtx.WithField("conn_id", client.ID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// SendTo 把事件投递给单个连接。连接不在注册表中时静默丢弃。
func (h *Hub) SendTo(connID, event string, payload any) {
	h.roomsMu.RLock()
	client := h.conns[connID]
	h.roomsMu.RUnlock()
	if client == nil {
		return
	}
	h.sendToClient(client, event, payload)
}

// sendToClient 序列化并投递单播事件。
func (h *Hub) sendToClient(client *Client, event string, payload any) {
	message, err := marshalEnvelope(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal message")
		return
	}
	if !h.safeSend(client, message) {
		logrus.WithFields(logrus.Fields{
			"conn_id": client.ID(),
			"event":   event,
		}).Warn("Client send channel full, message dropped")
	}
}

// safeSend 向客户端的发送通道做非阻塞投递。
// 断连和广播之间存在竞争：对已注销连接的投递必须静默失败，
// 所以在锁内检查 closed，避免向已关闭的通道发送。
func (h *Hub) safeSend(client *Client, message []byte) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	if client.closed {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// closeAllClients 在 Hub 停止时关闭所有剩余连接。
func (h *Hub) closeAllClients() {
	h.roomsMu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, client := range h.conns {
		client.closed = true
		clients = append(clients, client)
	}
	h.conns = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]bool)
	h.roomsMu.Unlock()

	for _, client := range clients {
		close(client.send)
		client.CloseConn()
	}
	logrus.WithField("count", len(clients)).Info("Closed all client connections")
}

// marshalEnvelope 把事件名和负载包成一条线格式消息。
func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto.Envelope{Event: event, Data: data})
}
