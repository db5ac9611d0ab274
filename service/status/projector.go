package status

import (
	"time"

	"WaGate/service/ratelimit"
	"WaGate/service/session"
	"WaGate/service/transport"
)

// Snapshot 对外可见的网关状态，纯投影不持状态
type Snapshot struct {
	Phase              string              `json:"phase"`
	Identity           *transport.Identity `json:"identity,omitempty"`
	HasChallenge       bool                `json:"hasChallenge"`
	MessagesThisWindow int                 `json:"messagesThisWindow"`
	MaxPerWindow       int                 `json:"maxPerWindow"`
	Timestamp          int64               `json:"timestamp"` // unix 毫秒
}

// Project 由会话状态 + 限速窗口推导一份一致的快照
func Project(st session.State, win ratelimit.WindowSnapshot, now time.Time) Snapshot {
	return Snapshot{
		Phase:              st.Phase.String(),
		Identity:           st.Identity,
		HasChallenge:       st.PendingChallenge != "",
		MessagesThisWindow: win.CountInWindow,
		MaxPerWindow:       win.MaxPerWindow,
		Timestamp:          now.UnixMilli(),
	}
}
