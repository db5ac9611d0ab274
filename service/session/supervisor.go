package session

import (
	"context"
	"sync"
	"time"

	"WaGate/logger"
	"WaGate/service/transport"
	"WaGate/tools/safe"
)

// ===== 配置 =====

type Conf struct {
	Device         string           // 设备名，凭证落盘的 key
	ReconnectDelay time.Duration    // 非计划断开后的自动重连延迟（默认 5s）
	InitRetryDelay time.Duration    // InitializeSession 失败后的退避（默认 10s）
	SettleDelay    time.Duration    // 手动重启先等底层句柄拆干净（默认 2500ms）
	InitTimeout    time.Duration    // 单次会话建立的超时（默认 90s）
	Clock          func() time.Time // 可注入时钟（单测用）；nil => time.Now
	// Schedule 延迟任务调度，可注入（单测用）；nil => time.AfterFunc
	Schedule func(d time.Duration, f func())
}

func (c *Conf) norm() {
	if c.Device == "" {
		c.Device = "default"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.InitRetryDelay <= 0 {
		c.InitRetryDelay = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2500 * time.Millisecond
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 90 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Schedule == nil {
		c.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
}

// CredentialStore 持久化会话凭证。Ready 时保存，clear-session 时清除。
type CredentialStore interface {
	Save(ctx context.Context, device string, blob []byte) error
	Purge(ctx context.Context, device string) error
}

// Listener 每次状态迁移后收到触发事件与迁移后的快照
type Listener func(ev transport.Event, st State)

// ===== Supervisor =====

// Supervisor 持有会话生命周期状态机，消费远端事件并驱动重连。
// 进程内单实例；State 只能经由它变更。
type Supervisor struct {
	mu   sync.Mutex
	st   State
	tr   transport.Transport
	conf Conf

	store CredentialStore // 可为 nil

	starting         bool // InitializeSession 进行中
	manualInFlight   bool // restart/clear 进行中，抑制自动重连
	reconnectPending bool // 已排了一次自动重连

	listeners []Listener

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewSupervisor(tr transport.Transport, store CredentialStore, conf Conf) *Supervisor {
	conf.norm()
	return &Supervisor{
		st:     State{Phase: PhaseDisconnected, LastTransition: conf.Clock()},
		tr:     tr,
		conf:   conf,
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// AddListener 注册迁移监听。仅在启动阶段调用，不做并发防护。
func (s *Supervisor) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Run 消费事件流直到 Close。由 main 以 SafeGo 启动。
func (s *Supervisor) Run() {
	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-s.tr.Events():
			if !ok {
				return
			}
			s.OnLifecycleEvent(ev)
		}
	}
}

func (s *Supervisor) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ===== 读接口 =====

func (s *Supervisor) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Phase
}

func (s *Supervisor) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// IsSendCapable phase 与底层句柄都要查：静默断开后 phase 会短暂失真
func (s *Supervisor) IsSendCapable() bool {
	s.mu.Lock()
	ready := s.st.Phase == PhaseReady
	s.mu.Unlock()
	return ready && s.tr.IsSessionOpen()
}

// ===== 会话建立 =====

// Start 幂等：已在 AwaitingScan/Authenticated/Ready 或建立中则什么都不做。
// 建立失败按 InitRetryDelay 无限退避重试（远端可能长时间不可用，必须自愈）。
func (s *Supervisor) Start() {
	s.mu.Lock()
	switch s.st.Phase {
	case PhaseAwaitingScan, PhaseAuthenticated, PhaseReady:
		s.mu.Unlock()
		return
	}
	if s.starting {
		s.mu.Unlock()
		return
	}
	s.starting = true
	s.mu.Unlock()

	safe.SafeGo("session.start", func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.conf.InitTimeout)
		defer cancel()
		err := s.tr.InitializeSession(ctx)

		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()

		if err != nil {
			logger.Errorf("[Supervisor] initialize session failed, retry in %s: %v", s.conf.InitRetryDelay, err)
			s.transition(transport.Event{Kind: transport.EventDisconnected, Reason: "init-failed: " + err.Error()}, nil, func(st *State) {
				st.Phase = PhaseFailed
			}, false)
			s.conf.Schedule(s.conf.InitRetryDelay, s.Start)
			return
		}
		logger.Info("[Supervisor] session initialization started")
	})
}

// ===== 事件处理 =====

// OnLifecycleEvent 迁移表的唯一入口。不在表内的 (状态, 事件) 组合忽略并告警。
func (s *Supervisor) OnLifecycleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventChallengeIssued:
		s.onChallenge(ev)
	case transport.EventAuthenticated:
		s.onAuthenticated(ev)
	case transport.EventReady:
		s.onReady(ev)
	case transport.EventAuthFailed:
		s.onAuthFailed(ev)
	case transport.EventDisconnected:
		s.onDisconnected(ev)
	default:
		logger.Warnf("[Supervisor] unknown lifecycle event: %v", ev.Kind)
	}
}

func (s *Supervisor) onChallenge(ev transport.Event) {
	// 凭证可能在等扫期间刷新，AwaitingScan 下重复下发是合法的
	guard := func(p Phase) bool {
		return p == PhaseDisconnected || p == PhaseFailed || p == PhaseAwaitingScan
	}
	s.transition(ev, guard, func(st *State) {
		st.Phase = PhaseAwaitingScan
		st.PendingChallenge = ev.Challenge
	}, false)
}

func (s *Supervisor) onAuthenticated(ev transport.Event) {
	s.transition(ev, func(p Phase) bool { return p == PhaseAwaitingScan }, func(st *State) {
		st.Phase = PhaseAuthenticated
		st.PendingChallenge = ""
	}, false)
}

func (s *Supervisor) onReady(ev transport.Event) {
	ok := s.transition(ev, func(p Phase) bool { return p == PhaseAuthenticated }, func(st *State) {
		st.Phase = PhaseReady
		st.PendingChallenge = ""
		st.Identity = ev.Identity
	}, false)
	if ok {
		s.persistCredentials()
	}
}

func (s *Supervisor) onAuthFailed(ev transport.Event) {
	s.transition(ev, nil, func(st *State) {
		st.Phase = PhaseDisconnected
		st.PendingChallenge = ""
		st.Identity = nil
	}, false)
}

func (s *Supervisor) onDisconnected(ev transport.Event) {
	// Identity 保留：瞬时断线后 /status 仍能看到账号信息
	s.transition(ev, nil, func(st *State) {
		st.Phase = PhaseDisconnected
		st.PendingChallenge = ""
	}, true)
}

// transition 在锁内先过 guard 再应用 mutate，锁外通知监听者。
// scheduleReconnect 时排一次自动重连，手动操作进行中则抑制。
func (s *Supervisor) transition(ev transport.Event, guard func(Phase) bool, mutate func(*State), scheduleReconnect bool) bool {
	s.mu.Lock()
	if guard != nil && !guard(s.st.Phase) {
		phase := s.st.Phase
		s.mu.Unlock()
		logger.Warnf("[Supervisor] %s in phase %s ignored", ev.Kind, phase)
		return false
	}
	mutate(&s.st)
	s.st.LastTransition = s.conf.Clock()
	s.st.LastReason = ev.Kind.String()
	if ev.Reason != "" {
		s.st.LastReason += ": " + ev.Reason
	}
	snapshot := s.st

	doSchedule := false
	if scheduleReconnect && !s.manualInFlight && !s.reconnectPending {
		s.reconnectPending = true
		doSchedule = true
	}
	listeners := s.listeners
	s.mu.Unlock()

	logger.Infof("[Supervisor] %s -> %s", ev.Kind, snapshot.Phase)

	if doSchedule {
		s.conf.Schedule(s.conf.ReconnectDelay, func() {
			s.mu.Lock()
			s.reconnectPending = false
			suppressed := s.manualInFlight
			s.mu.Unlock()
			if suppressed {
				return
			}
			s.Start()
		})
	}

	for _, l := range listeners {
		l(ev, snapshot)
	}
	return true
}

func (s *Supervisor) persistCredentials() {
	if s.store == nil {
		return
	}
	safe.SafeGo("session.persist-credentials", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		blob, err := s.tr.ExportCredentials(ctx)
		if err != nil {
			logger.Warnf("[Supervisor] export credentials: %v", err)
			return
		}
		if err := s.store.Save(ctx, s.conf.Device, blob); err != nil {
			logger.Warnf("[Supervisor] save credentials: %v", err)
		}
	})
}

// ===== 手动操作 =====

// Restart 异步：拆掉当前句柄，落定后重新 Start。
// 过程中由 manualInFlight 抑制断开事件排出的自动重连。
func (s *Supervisor) Restart() bool {
	return s.manualOp("restart", false)
}

// ClearSession 同 Restart，另加清除持久化凭证与账号身份。
func (s *Supervisor) ClearSession() bool {
	return s.manualOp("clear-session", true)
}

func (s *Supervisor) manualOp(name string, purge bool) bool {
	s.mu.Lock()
	if s.manualInFlight {
		s.mu.Unlock()
		logger.Warnf("[Supervisor] %s rejected: another manual op in flight", name)
		return false
	}
	s.manualInFlight = true
	s.mu.Unlock()

	safe.SafeGo("session."+name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.tr.DestroySession(ctx); err != nil {
			logger.Warnf("[Supervisor] destroy session: %v", err)
		}

		s.mu.Lock()
		s.st.Phase = PhaseDisconnected
		s.st.PendingChallenge = ""
		if purge {
			s.st.Identity = nil
		}
		s.st.LastTransition = s.conf.Clock()
		s.st.LastReason = name
		s.mu.Unlock()

		if purge && s.store != nil {
			if err := s.store.Purge(ctx, s.conf.Device); err != nil {
				logger.Warnf("[Supervisor] purge credentials: %v", err)
			}
		}

		// 落定，避免和底层 teardown 抢跑
		s.conf.Schedule(s.conf.SettleDelay, func() {
			s.mu.Lock()
			s.manualInFlight = false
			s.mu.Unlock()
			s.Start()
		})
	})
	return true
}
