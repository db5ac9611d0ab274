package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"WaGate/service/ratelimit"
	"WaGate/service/send"
	"WaGate/service/session"
	"WaGate/service/status"
	"WaGate/service/transport"
	"WaGate/tools/errs"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// gatewayTransport 可编排的远端：sendErr / registered 按测试设定
type gatewayTransport struct {
	open       bool
	sendErr    error
	registered bool
	events     chan transport.Event
}

func newGatewayTransport() *gatewayTransport {
	return &gatewayTransport{open: true, registered: true, events: make(chan transport.Event, 8)}
}

func (f *gatewayTransport) InitializeSession(context.Context) error { return nil }
func (f *gatewayTransport) SendMessage(_ context.Context, canonicalID, _ string) (transport.SendResult, error) {
	if f.sendErr != nil {
		return transport.SendResult{}, f.sendErr
	}
	return transport.SendResult{MessageID: "true_" + canonicalID + "_3EB0", Timestamp: time.UnixMilli(1700000000000)}, nil
}
func (f *gatewayTransport) IsSessionOpen() bool                  { return f.open }
func (f *gatewayTransport) DestroySession(context.Context) error { return nil }
func (f *gatewayTransport) IsRegisteredUser(context.Context, string) (bool, error) {
	return f.registered, nil
}
func (f *gatewayTransport) GetChats(context.Context) ([]transport.Chat, error) {
	return []transport.Chat{{ID: "919876543210@c.us", Name: "Ops"}}, nil
}
func (f *gatewayTransport) GetContacts(context.Context) ([]transport.Contact, error) {
	return nil, nil
}
func (f *gatewayTransport) ExportCredentials(context.Context) ([]byte, error) { return nil, nil }
func (f *gatewayTransport) Events() <-chan transport.Event                    { return f.events }

type fixture struct {
	router *gin.Engine
	tr     *gatewayTransport
	sup    *session.Supervisor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := newGatewayTransport()
	sup := session.NewSupervisor(tr, nil, session.Conf{
		Device:   "test-device",
		Schedule: func(time.Duration, func()) {},
	})
	rl := ratelimit.NewLimiter(ratelimit.Conf{
		MaxPerWindow: 10,
		MinSpacing:   time.Millisecond,
		Cooldown:     time.Millisecond,
		Window:       time.Minute,
	})
	pipeline := send.NewPipeline(sup, rl, tr, send.Conf{DefaultCountryCode: "91"})
	hub := status.NewHub(sup, rl, nil)
	h := NewHandler(pipeline, sup, hub, tr, "91")

	r := gin.New()
	r.GET("/status", h.HandlerStatus)
	r.GET("/chats", h.HandlerChats)
	r.GET("/contacts", h.HandlerContacts)
	r.POST("/send-message", h.HandlerSendMessage)
	r.POST("/check-number", h.HandlerCheckNumber)
	r.POST("/restart", h.HandlerRestart)
	r.POST("/clear-session", h.HandlerClearSession)
	return &fixture{router: r, tr: tr, sup: sup}
}

// makeReady 按 扫码→认证→就绪 驱动状态机
func (f *fixture) makeReady() {
	f.sup.OnLifecycleEvent(transport.Event{Kind: transport.EventChallengeIssued, Challenge: "tok"})
	f.sup.OnLifecycleEvent(transport.Event{Kind: transport.EventAuthenticated})
	f.sup.OnLifecycleEvent(transport.Event{Kind: transport.EventReady, Identity: &transport.Identity{DisplayName: "Ops", AccountID: "919876543210"}})
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad json %q: %v", w.Body.String(), err)
	}
	return m
}

func TestStatusAlwaysOK(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeJSON(t, w)
	if body["phase"] != "disconnected" {
		t.Fatalf("phase = %v", body["phase"])
	}

	f.makeReady()
	body = decodeJSON(t, f.do(t, http.MethodGet, "/status", nil))
	if body["phase"] != "ready" {
		t.Fatalf("phase after ready = %v", body["phase"])
	}
}

func TestSendMessageNotReady(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/send-message", SendMessageRequest{Recipient: "9876543210", Body: "hi"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeJSON(t, w)
	if int(body["code"].(float64)) != errs.NotReadyCode {
		t.Fatalf("code = %v, want %d", body["code"], errs.NotReadyCode)
	}
}

func TestSendMessageMalformedBody(t *testing.T) {
	f := newFixture(t)
	f.makeReady()

	w := f.do(t, http.MethodPost, "/send-message", `{"recipient":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeJSON(t, w)
	if int(body["code"].(float64)) != errs.InvalidInputCode {
		t.Fatalf("code = %v, want %d", body["code"], errs.InvalidInputCode)
	}
}

func TestSendMessageSuccess(t *testing.T) {
	f := newFixture(t)
	f.makeReady()

	w := f.do(t, http.MethodPost, "/send-message", SendMessageRequest{Recipient: "9876543210", Body: "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["messageId"] != "true_919876543210@c.us_3EB0" {
		t.Fatalf("messageId = %v", body["messageId"])
	}
	if body["recipient"] != "9876543210" {
		t.Fatalf("recipient echoed = %v", body["recipient"])
	}
}

func TestSendMessageUnregistered(t *testing.T) {
	f := newFixture(t)
	f.makeReady()
	f.tr.sendErr = errors.New("recipient not registered")

	w := f.do(t, http.MethodPost, "/send-message", SendMessageRequest{Recipient: "9876543210", Body: "hi"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeJSON(t, w)
	if int(body["code"].(float64)) != errs.UnregisteredRecipientCode {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestSendMessageTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.makeReady()
	f.tr.sendErr = errors.New("page crashed")

	w := f.do(t, http.MethodPost, "/send-message", SendMessageRequest{Recipient: "9876543210", Body: "hi"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeJSON(t, w)
	if int(body["code"].(float64)) != errs.TransportErrorCode {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestCheckNumber(t *testing.T) {
	f := newFixture(t)

	// 未就绪直接拒
	w := f.do(t, http.MethodPost, "/check-number", CheckNumberRequest{Recipient: "9876543210"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("not-ready status = %d, want 400", w.Code)
	}

	f.makeReady()
	w = f.do(t, http.MethodPost, "/check-number", CheckNumberRequest{Recipient: "09876543210"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["recipient"] != "919876543210@c.us" {
		t.Fatalf("canonical recipient = %v", body["recipient"])
	}
	if body["registered"] != true {
		t.Fatalf("registered = %v", body["registered"])
	}
}

func TestChatsGatedOnReady(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/chats", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("not-ready status = %d, want 400", w.Code)
	}

	f.makeReady()
	w := f.do(t, http.MethodGet, "/chats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var chats []transport.Chat
	if err := json.Unmarshal(w.Body.Bytes(), &chats); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "919876543210@c.us" {
		t.Fatalf("chats = %v", chats)
	}
}

func TestRestartAccepted(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["accepted"] != true {
		t.Fatalf("accepted = %v", body["accepted"])
	}

	// 上一个手动操作未收尾前，二次重启被拒
	body = decodeJSON(t, f.do(t, http.MethodPost, "/restart", nil))
	if body["accepted"] != false {
		t.Fatalf("overlapping restart accepted = %v", body["accepted"])
	}
}
