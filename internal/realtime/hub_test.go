package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(queue int) *Hub {
	return NewHub(zap.NewNop().Sugar(), queue)
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestPublishReachesEveryRoomMember(t *testing.T) {
	h := newTestHub(8)
	a := h.Connect("a")
	b := h.Connect("b")
	c := h.Connect("c")

	require.NoError(t, h.Subscribe("a", 1))
	require.NoError(t, h.Subscribe("b", 1))
	require.NoError(t, h.Subscribe("c", 1))
	h.Unsubscribe("c")

	h.Publish(context.Background(), 1, EventCommentAdded, CommentAdded{Comment: map[string]any{"id": 7}}, "")

	for _, cl := range []*Client{a, b} {
		msgs := cl.Drain()
		require.Len(t, msgs, 1)
		m := decode(t, msgs[0])
		assert.Equal(t, "commentAdded", m["type"])
		assert.EqualValues(t, 1, m["resourceId"])
		assert.EqualValues(t, 7, m["comment"].(map[string]any)["id"])
	}
	assert.Empty(t, c.Drain())
}

func TestPublishSkipsOrigin(t *testing.T) {
	h := newTestHub(8)
	a := h.Connect("a")
	b := h.Connect("b")
	require.NoError(t, h.Subscribe("a", 3))
	require.NoError(t, h.Subscribe("b", 3))

	h.Publish(context.Background(), 3, EventVotesUpdated, VotesUpdated{EntityType: "resource", EntityID: 3, Upvotes: 1, Score: 1}, "a")

	assert.Empty(t, a.Drain())
	msgs := b.Drain()
	require.Len(t, msgs, 1)
	m := decode(t, msgs[0])
	assert.Equal(t, "votesUpdated", m["type"])
	assert.EqualValues(t, 1, m["upvotes"])
	assert.EqualValues(t, 0, m["downvotes"])
	assert.EqualValues(t, 1, m["score"])
	assert.Equal(t, "resource", m["entityType"])
}

func TestSubscribeLeavesPreviousRoom(t *testing.T) {
	h := newTestHub(8)
	a := h.Connect("a")

	require.NoError(t, h.Subscribe("a", 1))
	require.NoError(t, h.Subscribe("a", 2))
	assert.Equal(t, 0, h.RoomSize(1))
	assert.Equal(t, 1, h.RoomSize(2))

	h.Publish(context.Background(), 1, EventCommentAdded, nil, "")
	assert.Empty(t, a.Drain())

	room, ok := h.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, uint(2), room)
}

func TestSubscribeUnknownConnection(t *testing.T) {
	h := newTestHub(8)
	assert.ErrorIs(t, h.Subscribe("ghost", 1), ErrUnknownConnection)
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	h := newTestHub(8)
	assert.NotPanics(t, func() {
		h.Publish(context.Background(), 99, EventCommentAdded, nil, "")
	})
	assert.Equal(t, 0, h.Deliver(99, EventCommentAdded, []byte(`{}`), ""))
}

func TestDisconnectRemovesFromRoom(t *testing.T) {
	h := newTestHub(8)
	h.Connect("a")
	require.NoError(t, h.Subscribe("a", 5))
	h.Disconnect("a")
	assert.Equal(t, 0, h.RoomSize(5))
	_, ok := h.RoomOf("a")
	assert.False(t, ok)
}

func TestQueueDropsOldestAndKeepsOrder(t *testing.T) {
	c := NewClient("x", 3)
	for i := 0; i < 5; i++ {
		c.Enqueue([]byte(fmt.Sprintf("%d", i)))
	}
	msgs := c.Drain()
	require.Len(t, msgs, 3)
	assert.Equal(t, "2", string(msgs[0]))
	assert.Equal(t, "3", string(msgs[1]))
	assert.Equal(t, "4", string(msgs[2]))
}

func TestPublishDoesNotBlockOnSlowClient(t *testing.T) {
	h := newTestHub(2)
	slow := h.Connect("slow")
	require.NoError(t, h.Subscribe("slow", 1))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(context.Background(), 1, EventVotesUpdated, VotesUpdated{Upvotes: i}, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full queue")
	}
	msgs := slow.Drain()
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 999, decode(t, msgs[1])["upvotes"])
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	h := newTestHub(16)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("c%d", i)
		h.Connect(id)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.Subscribe(id, uint(i%3)+1)
			h.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			h.Publish(context.Background(), uint(i%3)+1, EventCommentAdded, nil, "")
		}()
	}
	wg.Wait()
	for r := uint(1); r <= 3; r++ {
		assert.Equal(t, 0, h.RoomSize(r))
	}
}

func TestResourceFromSubject(t *testing.T) {
	id, ok := resourceFromSubject(subjectFor(42))
	require.True(t, ok)
	assert.Equal(t, uint(42), id)

	_, ok = resourceFromSubject("port42.realtime.resource.abc")
	assert.False(t, ok)
	_, ok = resourceFromSubject("other.subject.1")
	assert.False(t, ok)
}

func TestOriginContext(t *testing.T) {
	ctx := WithOrigin(context.Background(), "sock-1")
	assert.Equal(t, "sock-1", OriginFrom(ctx))
	assert.Equal(t, "", OriginFrom(context.Background()))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return decode(t, data)
}

func TestWebSocketRoomFlow(t *testing.T) {
	h := newTestHub(16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(context.Background(), conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func() (*websocket.Conn, string) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		hello := readJSON(t, conn)
		require.Equal(t, "connected", hello["type"])
		return conn, hello["connectionId"].(string)
	}

	a, _ := dial()
	defer a.Close()
	b, _ := dial()
	defer b.Close()
	c, _ := dial()
	defer c.Close()

	for _, conn := range []*websocket.Conn{a, b, c} {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "joinResourceRoom", "resourceId": 10}))
		assert.Equal(t, "roomJoined", readJSON(t, conn)["type"])
	}
	require.NoError(t, c.WriteJSON(map[string]any{"type": "leaveResourceRoom"}))
	assert.Equal(t, "roomLeft", readJSON(t, c)["type"])

	h.Publish(context.Background(), 10, EventCommentAdded, CommentAdded{Comment: map[string]any{"content": "hi"}}, "")

	for _, conn := range []*websocket.Conn{a, b} {
		m := readJSON(t, conn)
		assert.Equal(t, "commentAdded", m["type"])
		assert.EqualValues(t, 10, m["resourceId"])
	}

	// 离开房间的连接收不到任何东西
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}
