package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestConn 建立一对真实的WebSocket连接并返回服务端一侧。
func dialTestConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case conn := <-upgraded:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("等待WebSocket升级超时")
		return nil
	}
}

func TestFanOutTearsDownChannelAfterDroppingLastClient(t *testing.T) {
	hub := &Hub{channels: make(map[string]*sessionChannel)}

	// 无缓冲的发送通道模拟掉队者：第一条消息就触发断开
	laggard := &wsClient{conn: dialTestConn(t), send: make(chan []byte)}
	hub.register("sess-laggard", laggard)
	ch := hub.channels["sess-laggard"]

	hub.fanOut(ch, []byte(`{"type":"UPDATE_SCORE"}`))

	hub.mu.Lock()
	_, exists := hub.channels["sess-laggard"]
	hub.mu.Unlock()
	assert.False(t, exists, "最后一个订阅者掉队后频道应被拆除")

	select {
	case <-ch.stop:
	default:
		t.Fatal("频道拆除后stop应已关闭")
	}

	// 连接断开后readPump的收尾回调仍会执行，不应恐慌也不应复活频道
	hub.unregister("sess-laggard", laggard)
	hub.mu.Lock()
	_, exists = hub.channels["sess-laggard"]
	hub.mu.Unlock()
	assert.False(t, exists)
}

func TestFanOutKeepsChannelWhileSubscribersRemain(t *testing.T) {
	hub := &Hub{channels: make(map[string]*sessionChannel)}

	laggard := &wsClient{conn: dialTestConn(t), send: make(chan []byte)}
	healthy := &wsClient{conn: dialTestConn(t), send: make(chan []byte, sendBufferSize)}
	hub.register("sess-mixed", laggard)
	hub.register("sess-mixed", healthy)
	ch := hub.channels["sess-mixed"]

	hub.fanOut(ch, []byte(`{"type":"UPDATE_SCORE"}`))

	hub.mu.Lock()
	_, exists := hub.channels["sess-mixed"]
	remaining := len(ch.clients)
	hub.mu.Unlock()
	assert.True(t, exists, "仍有订阅者时频道不应被拆除")
	assert.Equal(t, 1, remaining, "只有掉队者被移除")

	select {
	case msg := <-healthy.send:
		assert.JSONEq(t, `{"type":"UPDATE_SCORE"}`, string(msg))
	default:
		t.Fatal("健在的订阅者应收到消息")
	}
}
