package send

import (
	"context"
	"time"

	"WaGate/logger"
	"WaGate/service/transport"
	"WaGate/tools/errs"
)

// ===== 协作者 =====

type ReadyChecker interface {
	IsSendCapable() bool
}

type Reserver interface {
	Reserve(ctx context.Context) error
	Penalize()
}

type Sender interface {
	SendMessage(ctx context.Context, canonicalID, body string) (transport.SendResult, error)
}

// ===== 配置 =====

type Conf struct {
	DefaultCountryCode string // 裸 10 位号补的国码（默认 "91"）
	MaxAttempts        int    // 限流重试上限，含首发（默认 2，即最多自动重试一次）
}

func (c *Conf) norm() {
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = "91"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
}

// outboundMessage 单次请求的发送记录，重试复用同一条并递增 attempt
type outboundMessage struct {
	recipientRaw       string
	recipientCanonical string
	body               string
	attempt            int
}

// ===== Pipeline =====

// Pipeline 出站发送链路：就绪检查 → 归一化 → 限速预约 → 远端发送。
// 限流类失败 penalize 后有界重试一次；其余失败不自动重试。
type Pipeline struct {
	conf  Conf
	ready ReadyChecker
	rl    Reserver
	tr    Sender
}

func NewPipeline(ready ReadyChecker, rl Reserver, tr Sender, conf Conf) *Pipeline {
	conf.norm()
	return &Pipeline{conf: conf, ready: ready, rl: rl, tr: tr}
}

func (p *Pipeline) Send(ctx context.Context, recipientRaw, body string) (transport.SendResult, error) {
	// 未就绪立刻拒绝：不排队不兜底，调用方自己重交
	if !p.ready.IsSendCapable() {
		return transport.SendResult{}, errs.ErrNotReady.WrapMsg("session not ready")
	}

	canonical, err := CanonicalRecipient(recipientRaw, p.conf.DefaultCountryCode)
	if err != nil {
		return transport.SendResult{}, err
	}

	msg := &outboundMessage{
		recipientRaw:       recipientRaw,
		recipientCanonical: canonical,
		body:               body,
	}

	for {
		if err := p.rl.Reserve(ctx); err != nil {
			return transport.SendResult{}, errs.ErrTransport.WrapMsg("reserve interrupted", "err", err)
		}

		start := time.Now()
		res, err := p.tr.SendMessage(ctx, msg.recipientCanonical, msg.body)
		if err == nil {
			logger.Infof("[SendPipeline] sent to %s in %s attempt=%d", msg.recipientCanonical, time.Since(start), msg.attempt)
			return res, nil
		}

		switch {
		case transport.IsRateLimitShaped(err):
			p.rl.Penalize()
			if msg.attempt+1 < p.conf.MaxAttempts {
				msg.attempt++
				logger.Warnf("[SendPipeline] remote rate limit, retrying attempt=%d: %v", msg.attempt, err)
				continue
			}
			// 连续两次限流：不再吸收，按传输错误暴露
			return transport.SendResult{}, errs.ErrTransport.WrapMsg("rate limited twice", "err", err)
		case transport.IsUnregisteredShaped(err):
			return transport.SendResult{}, errs.ErrUnregisteredRecipient.WrapMsg("recipient unreachable", "recipient", msg.recipientCanonical)
		default:
			return transport.SendResult{}, errs.ErrTransport.WrapMsg("send failed", "err", err)
		}
	}
}
