package status

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"WaGate/logger"
	"WaGate/service/ratelimit"
	"WaGate/service/session"
	"WaGate/service/transport"
)

const (
	EventStatus    = "status"
	EventChallenge = "challenge-available"
)

// EventMsg 推给订阅者的事件信封
type EventMsg struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Publisher 事件镜像（比如 NATS），可为 nil
type Publisher interface {
	Publish(event string, data interface{})
}

// Hub 订阅者集合 + 广播。注册给 Supervisor 做迁移监听，
// 每次迁移向所有订阅者 fire-and-forget 推一份快照。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	fanout *Fanout
	sup    *session.Supervisor
	rl     *ratelimit.Limiter
	pub    Publisher // 可为 nil

	clock func() time.Time
}

func NewHub(sup *session.Supervisor, rl *ratelimit.Limiter, pub Publisher) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		fanout:  NewFanout(2, 64),
		sup:     sup,
		rl:      rl,
		pub:     pub,
		clock:   time.Now,
	}
	sup.AddListener(h.onTransition)
	return h
}

// CurrentSnapshot 给 /status 轮询用
func (h *Hub) CurrentSnapshot() Snapshot {
	return Project(h.sup.Snapshot(), h.rl.Snapshot(), h.clock())
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()

	// 新订阅者立即拿到一份快照；有待扫凭证的话补发
	st := h.sup.Snapshot()
	snap := Project(st, h.rl.Snapshot(), h.clock())
	h.sendTo(c, EventMsg{Event: EventStatus, Data: snap})
	if st.PendingChallenge != "" {
		h.sendTo(c, EventMsg{Event: EventChallenge, Data: encodeChallenge(st.PendingChallenge)})
	}
}

func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	delete(h.clients, connID)
	h.mu.Unlock()
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		_ = c.WS.Close()
		delete(h.clients, id)
	}
}

// onTransition 每次生命周期迁移：广播快照；新凭证再广播一条 challenge 事件
func (h *Hub) onTransition(ev transport.Event, st session.State) {
	snap := Project(st, h.rl.Snapshot(), h.clock())
	h.broadcast(EventMsg{Event: EventStatus, Data: snap})
	if h.pub != nil {
		h.pub.Publish(EventStatus, snap)
	}

	if ev.Kind == transport.EventChallengeIssued {
		encoded := encodeChallenge(ev.Challenge)
		h.broadcast(EventMsg{Event: EventChallenge, Data: encoded})
		if h.pub != nil {
			h.pub.Publish(EventChallenge, encoded)
		}
	}
}

func (h *Hub) broadcast(msg EventMsg) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("[StatusHub] marshal event: %v", err)
		return
	}
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	h.fanout.Broadcast(conns, payload)
}

func (h *Hub) sendTo(c *Client, msg EventMsg) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

// encodeChallenge 扫码凭证按 data-url 下发，前端直接渲染
func encodeChallenge(token string) string {
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(token))
}
