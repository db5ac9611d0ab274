package status

import (
	"net"
	"net/http"
	"time"

	"WaGate/logger"
	"WaGate/tools/ids"
	"WaGate/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeDeadline = 5 * time.Second

// HandleEvents ===== WebSocket 订阅端点 =====
// 连上即收到一份状态快照，此后每次生命周期迁移都会推送。
func (h *Hub) HandleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[StatusWS] upgrade websocket error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), ws, 32)
	h.Add(client)
	logger.Infof("[StatusWS] subscriber connected connID=%s remote=%s", client.ConnID, ws.RemoteAddr())

	done := make(chan struct{})

	// ---- 写协程：唯一写者，消费 Send 队列 ----
	safe.SafeGo("status.ws-writer", func() {
		for {
			select {
			case <-done:
				return
			case payload, ok := <-client.Send:
				if !ok {
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
				if werr := ws.WriteMessage(websocket.TextMessage, payload); werr != nil {
					logger.Infof("[StatusWS] write err connID=%s err=%v", client.ConnID, werr)
					_ = ws.Close()
					return
				}
			}
		}
	})

	// ---- 读循环：订阅端不上行业务数据，只用来感知断开 ----
	for {
		if _, _, rerr := ws.ReadMessage(); rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[StatusWS] peer closed connID=%s", client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[StatusWS] read timeout connID=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[StatusWS] read err connID=%s err=%v", client.ConnID, rerr)
			}
			break
		}
	}

	close(done)
	h.Remove(client.ConnID)
	_ = ws.Close()
}
