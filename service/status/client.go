package status

import (
	"github.com/gorilla/websocket"
)

// Client 一个订阅者连接。
// 慢订阅者只会丢自己的推送，不会拖住别人。
type Client struct {
	ConnID string          // 连接ID（网关内唯一）
	WS     *websocket.Conn // WebSocket 连接对象
	Send   chan []byte     // 出站队列（单写协程消费）
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
	}
}
