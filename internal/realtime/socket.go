package realtime

import (
	"context"
	"encoding/json"
	"time"

	"port42/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// clientMessage 客户端发来的消息
type clientMessage struct {
	Type       string `json:"type"`
	ResourceID uint   `json:"resourceId"`
}

// Serve 接管一个已升级的 websocket 连接，直到连接断开或 ctx 结束
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	client := h.Connect(id)
	h.log.Debugw("Realtime client connected", "conn_id", id)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		h.Disconnect(id)
		conn.Close()
		h.log.Debugw("Realtime client disconnected", "conn_id", id)
	}()

	hello, _ := json.Marshal(message{Type: eventConnected, ConnectionID: id})
	client.Enqueue(hello)

	go h.writePump(ctx, conn, client)
	h.readPump(conn, client)
}

func (h *Hub) readPump(conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugw("Realtime read failed", "conn_id", client.ID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(client, message{Type: eventError, Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case "joinResourceRoom":
			if msg.ResourceID == 0 {
				h.reply(client, message{Type: eventError, Error: "resourceId is required"})
				continue
			}
			if err := h.Subscribe(client.ID, msg.ResourceID); err != nil {
				return
			}
			h.reply(client, message{Type: eventRoomJoined, ResourceID: msg.ResourceID})
		case "leaveResourceRoom":
			resourceID, _ := h.RoomOf(client.ID)
			h.Unsubscribe(client.ID)
			h.reply(client, message{Type: eventRoomLeft, ResourceID: resourceID})
		default:
			h.reply(client, message{Type: eventError, Error: "unknown message type"})
		}
	}
}

func (h *Hub) reply(client *Client, m message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	client.Enqueue(b)
}

func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-client.Ready():
			for _, msg := range client.Drain() {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					// 连接已死，读循环会随之退出
					h.log.Debugw("Realtime send failed", "conn_id", client.ID, "error", err)
					metrics.RealtimeDropped.Inc()
					return
				}
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
