package hub // 白盒测试：需要直接读取客户端的发送通道

import (
	"encoding/json"
	"testing"

	"github.com/AlexCabreraD/retrospective-server/internal/dto"
	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHub 创建一个不跑 Run 循环的 Hub；测试直接调用内部方法，
// 避免对调度时序的依赖。
func newTestHub() *Hub {
	return NewHub(service.NewBoardService())
}

// newTestClient 创建一个没有底层连接的客户端并注册到 Hub。
// 读写泵不启动，消息会停留在 send 通道里供测试检查。
func newTestClient(h *Hub, id string) *Client {
	c := NewClient(h, nil, id)
	h.registerClient(c)
	return c
}

// recvEvent 从客户端的发送通道取出下一条消息并解析信封。
func recvEvent(t *testing.T, c *Client) dto.Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "发送通道不应已关闭")
		var env dto.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	default:
		t.Fatalf("client %s 应收到一条消息，但通道为空", c.ID())
		return dto.Envelope{}
	}
}

// assertNoEvent 断言客户端没有收到任何消息。
func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("client %s 不应收到消息，但收到了: %s", c.ID(), raw)
	default:
	}
}

func TestHub_Subscribe_Idempotent(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "c1")

	h.Subscribe(c, "abc12")
	h.Subscribe(c, "abc12")

	members := h.RoomMembers("abc12")
	assert.Equal(t, []string{"c1"}, members, "重复订阅不应产生额外成员")
}

func TestHub_RoomMembers_UnknownRoom(t *testing.T) {
	h := newTestHub()

	members := h.RoomMembers("nope1")

	assert.NotNil(t, members, "未知房间应返回空列表而不是 nil")
	assert.Empty(t, members)
}

func TestHub_Broadcast_RoomScoped(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "c1")
	c2 := newTestClient(h, "c2")
	c3 := newTestClient(h, "c3")

	h.Subscribe(c1, "abc12")
	h.Subscribe(c2, "abc12")
	h.Subscribe(c3, "zzz99") // 别的房间

	h.Broadcast("abc12", "post_added", dto.PostAdded{SectionID: "s1"})

	for _, c := range []*Client{c1, c2} {
		env := recvEvent(t, c)
		assert.Equal(t, "post_added", env.Event)
	}
	assertNoEvent(t, c3)
}

func TestHub_SendTo_SingleConnection(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "c1")
	c2 := newTestClient(h, "c2")

	h.SendTo("c1", "error", dto.ErrorMessage{Message: "Board not found."})

	env := recvEvent(t, c1)
	assert.Equal(t, "error", env.Event)
	var payload dto.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "Board not found.", payload.Message)
	assertNoEvent(t, c2)

	// 未知连接：静默丢弃
	h.SendTo("ghost", "error", dto.ErrorMessage{Message: "x"})
}

func TestHub_Unregister_CleansAllRooms(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "c1")
	c2 := newTestClient(h, "c2")

	// 一个连接可以同时订阅多个房间
	h.Subscribe(c1, "abc12")
	h.Subscribe(c1, "zzz99")
	h.Subscribe(c2, "abc12")

	h.unregisterClient(c1)

	assert.Equal(t, []string{"c2"}, h.RoomMembers("abc12"))
	assert.Empty(t, h.RoomMembers("zzz99"), "最后一个成员退出后房间应被移除")

	// 注销是幂等的，重复注销不应 panic（send 通道只关一次）
	h.unregisterClient(c1)
}

func TestHub_Broadcast_AfterUnregister_FailsSilently(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "c1")
	c2 := newTestClient(h, "c2")
	h.Subscribe(c1, "abc12")
	h.Subscribe(c2, "abc12")

	// 断连和广播之间的竞争：对已注销连接的投递必须静默失败
	h.unregisterClient(c2)

	require.NotPanics(t, func() {
		h.Broadcast("abc12", "user_joined", dto.UserJoined{Name: "bob"})
	})
	env := recvEvent(t, c1)
	assert.Equal(t, "user_joined", env.Event)
}

func TestHub_Broadcast_SlowConsumerSkipped(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "c1")
	h.Subscribe(c1, "abc12")

	// 填满发送通道，模拟一个慢消费者
	for i := 0; i < cap(c1.send); i++ {
		c1.send <- []byte("{}")
	}

	// 广播不应阻塞触发它的调用方
	require.NotPanics(t, func() {
		h.Broadcast("abc12", "post_added", dto.PostAdded{SectionID: "s1"})
	})
}

func TestHub_QueueMessage(t *testing.T) {
	h := newTestHub()
	c := NewClient(h, nil, "c1")

	assert.True(t, h.QueueMessage(HubMessage{Type: "register", Client: c}))

	h.Stop()
	assert.False(t, h.QueueMessage(HubMessage{Type: "register", Client: c}), "Hub 停止后入队应失败")
}
