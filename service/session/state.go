package session

import (
	"time"

	"WaGate/service/transport"
)

type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseAwaitingScan
	PhaseAuthenticated
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseAwaitingScan:
		return "awaiting-scan"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State 会话状态快照。只读副本，真实状态只归 Supervisor 改。
//
// Identity 一经 Ready 写入后，瞬时断线不清除（诊断用），
// 只有鉴权失败 / 手动 clear-session 才清。
// PendingChallenge 离开 AwaitingScan 即清除。
type State struct {
	Phase            Phase
	PendingChallenge string
	Identity         *transport.Identity
	LastTransition   time.Time
	LastReason       string
}
