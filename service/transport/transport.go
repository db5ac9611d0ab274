package transport

import (
	"context"
	"time"
)

// 远端聊天网络客户端的抽象。网关只依赖这一层：
// 真实实现包一个无头浏览器/官方客户端，这里不关心。

type EventKind int

const (
	EventChallengeIssued EventKind = iota // 扫码凭证已生成
	EventAuthenticated                    // 扫码通过，会话鉴权完成
	EventReady                            // 会话可发消息
	EventAuthFailed
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventChallengeIssued:
		return "challenge-issued"
	case EventAuthenticated:
		return "authenticated"
	case EventReady:
		return "ready"
	case EventAuthFailed:
		return "auth-failed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Identity 会话对应的账号身份，进入 Ready 时由远端给出
type Identity struct {
	DisplayName string `json:"displayName"`
	AccountID   string `json:"accountId"`
	Platform    string `json:"platform"`
}

// Event 生命周期事件。字段按 Kind 选填：
// Challenge 仅 challenge-issued；Identity 仅 ready；Reason 仅失败/断开。
type Event struct {
	Kind      EventKind
	Challenge string
	Identity  *Identity
	Reason    string
}

type SendResult struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Transport interface {
	// InitializeSession 启动一次会话建立。失败返回 error，由上层退避重试。
	InitializeSession(ctx context.Context) error

	SendMessage(ctx context.Context, canonicalID, body string) (SendResult, error)

	// IsSessionOpen 底层会话句柄是否仍然打开。
	// 生命周期 phase 可能滞后于真实断开，二者都要检查。
	IsSessionOpen() bool

	DestroySession(ctx context.Context) error

	IsRegisteredUser(ctx context.Context, canonicalID string) (bool, error)
	GetChats(ctx context.Context) ([]Chat, error)
	GetContacts(ctx context.Context) ([]Contact, error)

	// ExportCredentials 导出可持久化的会话凭证（不透明 blob）。
	ExportCredentials(ctx context.Context) ([]byte, error)

	// Events 生命周期事件流，由 Supervisor 单协程消费
	Events() <-chan Event
}
