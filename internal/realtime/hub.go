package realtime

import (
	"context"
	"errors"
	"sync"

	"port42/internal/metrics"

	"go.uber.org/zap"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Hub 进程内的房间表：resourceID -> 连接集合，连接 -> 所在房间。
// 一个连接同一时间最多在一个房间里。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[uint]map[string]*Client
	member  map[string]uint

	queueSize int
	log       *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger, queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[uint]map[string]*Client),
		member:    make(map[string]uint),
		queueSize: queueSize,
		log:       log,
	}
}

// Connect 注册一个新连接
func (h *Hub) Connect(id string) *Client {
	c := NewClient(id, h.queueSize)
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()
	return c
}

// Disconnect 退出房间并丢弃连接
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		h.leaveLocked(id)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		c.close()
		metrics.RealtimeConnections.Dec()
	}
}

// Subscribe 加入资源房间，会先离开之前的房间
func (h *Hub) Subscribe(connID string, resourceID uint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	h.leaveLocked(connID)

	room := h.rooms[resourceID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[resourceID] = room
	}
	room[connID] = c
	h.member[connID] = resourceID
	return nil
}

// Unsubscribe 离开当前所在房间，不在任何房间时什么也不做
func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	h.leaveLocked(connID)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(connID string) {
	resourceID, ok := h.member[connID]
	if !ok {
		return
	}
	delete(h.member, connID)
	if room := h.rooms[resourceID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, resourceID)
		}
	}
}

// RoomOf 返回连接当前所在的房间
func (h *Hub) RoomOf(connID string) (uint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.member[connID]
	return id, ok
}

// RoomSize 房间内连接数
func (h *Hub) RoomSize(resourceID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[resourceID])
}

// ClientCount 当前在线连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 编码后投递到本进程的房间
func (h *Hub) Publish(ctx context.Context, resourceID uint, event EventType, payload any, originConnID string) {
	msg, err := Encode(resourceID, event, payload)
	if err != nil {
		h.log.Warnw("Realtime encode failed", "resource_id", resourceID, "event", event, "error", err)
		return
	}
	h.Deliver(resourceID, event, msg, originConnID)
}

// Deliver 把已编码的消息放进房间内每个连接的队列，跳过发起方
func (h *Hub) Deliver(resourceID uint, event EventType, msg []byte, originConnID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[resourceID]
	if len(room) == 0 {
		return 0
	}

	delivered := 0
	for id, c := range room {
		if id == originConnID {
			continue
		}
		if c.Enqueue(msg) {
			metrics.RealtimeDropped.Inc()
			h.log.Debugw("Realtime queue full, dropped oldest", "conn_id", id, "resource_id", resourceID)
		}
		delivered++
	}
	metrics.RealtimeDelivered.WithLabelValues(string(event)).Add(float64(delivered))
	return delivered
}
