package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"WaGate/logger"
	"WaGate/tools/safe"

	"github.com/gorilla/websocket"
	pkgerr "github.com/pkg/errors"
)

// Bridge 经 HTTP/WebSocket 对接无头客户端边车（sidecar）的 Transport 实现。
// 边车进程持有真实的聊天网络会话；本进程只做控制面。

type BridgeConf struct {
	BaseURL     string        // 如 http://127.0.0.1:9090
	HTTPTimeout time.Duration // 默认 30s
	EventBuffer int           // 默认 16
}

func (c *BridgeConf) norm() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 16
	}
}

type Bridge struct {
	conf   BridgeConf
	hc     *http.Client
	events chan Event
}

func NewBridge(conf BridgeConf) *Bridge {
	conf.norm()
	return &Bridge{
		conf:   conf,
		hc:     &http.Client{Timeout: conf.HTTPTimeout},
		events: make(chan Event, conf.EventBuffer),
	}
}

var _ Transport = (*Bridge)(nil)

func (b *Bridge) Events() <-chan Event { return b.events }

// wireEvent 边车事件帧
type wireEvent struct {
	Event     string    `json:"event"`
	Challenge string    `json:"challenge,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// InitializeSession 让边车建会话，并起一条事件流订阅
func (b *Bridge) InitializeSession(ctx context.Context) error {
	if err := b.post(ctx, "/connect", nil, nil); err != nil {
		return pkgerr.Wrap(err, "bridge connect")
	}

	wsURL := "ws" + b.conf.BaseURL[len("http"):] + "/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return pkgerr.Wrap(err, "bridge event stream")
	}

	safe.SafeGo("bridge.events", func() {
		defer func() { _ = conn.Close() }()
		for {
			var we wireEvent
			if err := conn.ReadJSON(&we); err != nil {
				logger.Infof("[Bridge] event stream closed: %v", err)
				b.emit(Event{Kind: EventDisconnected, Reason: "event stream closed"})
				return
			}
			b.emit(decodeWireEvent(we))
		}
	})
	return nil
}

func decodeWireEvent(we wireEvent) Event {
	switch we.Event {
	case "challenge-issued":
		return Event{Kind: EventChallengeIssued, Challenge: we.Challenge}
	case "authenticated":
		return Event{Kind: EventAuthenticated}
	case "ready":
		return Event{Kind: EventReady, Identity: we.Identity}
	case "auth-failed":
		return Event{Kind: EventAuthFailed, Reason: we.Reason}
	default:
		return Event{Kind: EventDisconnected, Reason: we.Reason}
	}
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		logger.Warnf("[Bridge] event buffer full, dropping %s", ev.Kind)
	}
}

func (b *Bridge) SendMessage(ctx context.Context, canonicalID, body string) (SendResult, error) {
	req := map[string]string{"to": canonicalID, "body": body}
	var out struct {
		ID string `json:"id"`
		TS int64  `json:"ts"`
	}
	if err := b.post(ctx, "/send-message", req, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{MessageID: out.ID, Timestamp: time.UnixMilli(out.TS)}, nil
}

func (b *Bridge) IsSessionOpen() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var out struct {
		Open bool `json:"open"`
	}
	if err := b.get(ctx, "/session-open", &out); err != nil {
		return false
	}
	return out.Open
}

func (b *Bridge) DestroySession(ctx context.Context) error {
	return b.post(ctx, "/destroy", nil, nil)
}

func (b *Bridge) IsRegisteredUser(ctx context.Context, canonicalID string) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	if err := b.post(ctx, "/check-number", map[string]string{"id": canonicalID}, &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

func (b *Bridge) GetChats(ctx context.Context) ([]Chat, error) {
	var out []Chat
	if err := b.get(ctx, "/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) GetContacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	if err := b.get(ctx, "/contacts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) ExportCredentials(ctx context.Context) ([]byte, error) {
	var out json.RawMessage
	if err := b.get(ctx, "/credentials", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ===== HTTP 小工具 =====

func (b *Bridge) post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.conf.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *Bridge) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.conf.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *Bridge) do(req *http.Request, out any) error {
	resp, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		// 边车把远端报错文案原样放 body，归类逻辑要用到
		return fmt.Errorf("bridge %s: %s: %s", req.URL.Path, resp.Status, bytes.TrimSpace(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
