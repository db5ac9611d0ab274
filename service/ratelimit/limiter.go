package ratelimit

import (
	"context"
	"sync"
	"time"

	"WaGate/logger"
)

// ===== 配置 =====

type Conf struct {
	MaxPerWindow int           // 窗口内封顶，超过后强制等待（默认 10）
	MinSpacing   time.Duration // 相邻两次发送的最小间隔（默认 3s）
	Cooldown     time.Duration // 远端确认限流后的惩罚等待（默认 30s）
	Window       time.Duration // 固定计数窗口（默认 60s）
	CapWait      time.Duration // 封顶后的等待 = 窗口 + 1s 余量（默认 61s）

	Clock func() time.Time // 可注入时钟（单测用）；nil => time.Now
	// Sleep 协作式挂起，可注入（单测用）；nil => timer + ctx
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *Conf) norm() {
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = 10
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = 3 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.CapWait <= 0 {
		c.CapWait = c.Window + time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleepTimer
	}
}

func sleepTimer(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WindowSnapshot 只读窗口快照，给状态投影用
type WindowSnapshot struct {
	WindowStart   time.Time
	CountInWindow int
	LastSendAt    time.Time
	MaxPerWindow  int
}

// ===== Limiter =====

// Limiter 固定 60s 窗口计数 + 最小间隔。窗口是硬复位不是滑动：
// 第 59 秒打满一窗、第 61 秒再打满一窗是允许的（已知且接受的边界放量）。
//
// Reserve 串行授予（同时最多一个发送在途），并发调用按提交顺序 FIFO 排队；
// 等待是协作式挂起，不会拖住别的请求协程。
type Limiter struct {
	conf Conf

	mu            sync.Mutex
	windowStart   time.Time
	countInWindow int
	lastSendAt    time.Time
	penalized     bool

	queue []chan struct{} // FIFO 等待队列，队首持有预约权

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewLimiter(conf Conf) *Limiter {
	conf.norm()
	return &Limiter{
		conf:        conf,
		windowStart: conf.Clock(),
		stopCh:      make(chan struct{}),
	}
}

// RunTicker 周期性窗口复位。由 main 以 SafeGo 启动。
func (l *Limiter) RunTicker() {
	t := time.NewTicker(l.conf.Window)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			l.OnWindowTick()
		}
	}
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// OnWindowTick 硬复位计数。不滑动、不衰减。
func (l *Limiter) OnWindowTick() {
	l.mu.Lock()
	l.countInWindow = 0
	l.penalized = false
	l.windowStart = l.conf.Clock()
	l.mu.Unlock()
}

// Penalize 远端确认限流后调用：把计数顶到封顶，
// 下一次 Reserve 会先吃满一个 Cooldown。区别于常规窗口复位，这是惩罚性的。
func (l *Limiter) Penalize() {
	l.mu.Lock()
	l.countInWindow = l.conf.MaxPerWindow
	l.penalized = true
	l.mu.Unlock()
	logger.Warnf("[RateLimiter] penalized, next reserve waits %s", l.conf.Cooldown)
}

// Reserve 等到可以安全发送一条消息，原子记录发送槽位后返回。
// 除 ctx 取消外不失败。排队中可被 ctx 打断；槽位一旦授予不可撤销。
func (l *Limiter) Reserve(ctx context.Context) error {
	turn := make(chan struct{})
	l.mu.Lock()
	l.queue = append(l.queue, turn)
	if len(l.queue) == 1 {
		close(turn)
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		l.abandon(turn)
		return ctx.Err()
	case <-turn:
	}
	defer l.release()

	// 1) 封顶：等一个冷却期再把窗口清零
	l.mu.Lock()
	capped := l.countInWindow >= l.conf.MaxPerWindow
	wait := l.conf.CapWait
	if l.penalized {
		wait = l.conf.Cooldown
	}
	l.mu.Unlock()

	if capped {
		logger.Infof("[RateLimiter] window cap hit, waiting %s", wait)
		if err := l.conf.Sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
		l.countInWindow = 0
		l.penalized = false
		l.windowStart = l.conf.Clock()
		l.mu.Unlock()
	}

	// 2) 最小间隔
	l.mu.Lock()
	last := l.lastSendAt
	l.mu.Unlock()
	if !last.IsZero() {
		if elapsed := l.conf.Clock().Sub(last); elapsed < l.conf.MinSpacing {
			if err := l.conf.Sleep(ctx, l.conf.MinSpacing-elapsed); err != nil {
				return err
			}
		}
	}

	// 3) 记录槽位
	l.mu.Lock()
	l.countInWindow++
	l.lastSendAt = l.conf.Clock()
	l.mu.Unlock()
	return nil
}

func (l *Limiter) Snapshot() WindowSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return WindowSnapshot{
		WindowStart:   l.windowStart,
		CountInWindow: l.countInWindow,
		LastSendAt:    l.lastSendAt,
		MaxPerWindow:  l.conf.MaxPerWindow,
	}
}

// release 队首出队并放行下一个
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return
	}
	l.queue = l.queue[1:]
	if len(l.queue) > 0 {
		close(l.queue[0])
	}
}

// abandon 排队中被取消：从队列摘掉自己；若恰好已成为队首则按 release 处理
func (l *Limiter) abandon(turn chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ch := range l.queue {
		if ch != turn {
			continue
		}
		if i == 0 {
			// 已被放行，和 release 同语义
			l.queue = l.queue[1:]
			if len(l.queue) > 0 {
				close(l.queue[0])
			}
		} else {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
		}
		return
	}
}
