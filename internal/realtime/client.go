package realtime

import (
	"sync"
)

// Client 一个实时连接的发送队列。队列有界，满了丢弃最旧的消息，
// 发布方永远不会被慢连接阻塞。
type Client struct {
	ID string

	mu     sync.Mutex
	queue  [][]byte
	limit  int
	closed bool
	ready  chan struct{}
}

func NewClient(id string, limit int) *Client {
	if limit < 1 {
		limit = 1
	}
	return &Client{
		ID:    id,
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Enqueue 追加一条消息，返回是否挤掉了旧消息
func (c *Client) Enqueue(msg []byte) (dropped bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if len(c.queue) >= c.limit {
		c.queue = c.queue[1:]
		dropped = true
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
	return dropped
}

// Drain 按入队顺序取出全部待发消息
func (c *Client) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Ready 有新消息时收到信号
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.queue = nil
	c.mu.Unlock()
}
