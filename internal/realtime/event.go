package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventCommentAdded EventType = "commentAdded"
	EventVotesUpdated EventType = "votesUpdated"

	// 以下只在单个连接上使用，不经过房间广播
	eventConnected  EventType = "connected"
	eventRoomJoined EventType = "roomJoined"
	eventRoomLeft   EventType = "roomLeft"
	eventError      EventType = "error"
)

// Notifier 把资源相关的变更推送给订阅了该资源房间的连接
type Notifier interface {
	Publish(ctx context.Context, resourceID uint, event EventType, payload any, originConnID string)
}

// CommentAdded commentAdded 事件的载荷
type CommentAdded struct {
	Comment any `json:"comment"`
}

// VotesUpdated votesUpdated 事件的载荷
type VotesUpdated struct {
	EntityType string `json:"entityType"`
	EntityID   uint   `json:"entityId"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
	Score      int    `json:"score"`
}

type message struct {
	Type         EventType `json:"type"`
	ResourceID   uint      `json:"resourceId,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
	Error        string    `json:"error,omitempty"`
	Data         any       `json:"data,omitempty"`
	*CommentAdded
	*VotesUpdated
}

// Encode 生成发给客户端的 JSON 消息，已知载荷的字段平铺在顶层
func Encode(resourceID uint, event EventType, payload any) ([]byte, error) {
	m := message{Type: event, ResourceID: resourceID}
	switch p := payload.(type) {
	case nil:
	case CommentAdded:
		m.CommentAdded = &p
	case *CommentAdded:
		m.CommentAdded = p
	case VotesUpdated:
		m.VotesUpdated = &p
	case *VotesUpdated:
		m.VotesUpdated = p
	default:
		m.Data = p
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}

type originKey struct{}

// WithOrigin 记录触发变更的 socket 连接，广播时跳过它
func WithOrigin(ctx context.Context, connID string) context.Context {
	if connID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, connID)
}

func OriginFrom(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

// Nop 不推送任何事件
type Nop struct{}

func (Nop) Publish(context.Context, uint, EventType, any, string) {}
