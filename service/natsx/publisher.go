package natsx

import (
	"encoding/json"
	"time"

	"WaGate/logger"

	"github.com/nats-io/nats.go"
)

// 状态事件镜像：把每次快照/凭证事件同步发一份到 NATS，
// 让外部系统不用挂 WebSocket 也能跟踪网关。Core 模式，fire-and-forget。

type Config struct {
	URL           string        // 为空表示不启用
	Subject       string        // 默认 wagate.events
	Name          string        // 连接名
	ReconnectWait time.Duration // 默认 500ms
	Timeout       time.Duration // 默认 3s
}

func (c *Config) norm() {
	if c.Subject == "" {
		c.Subject = "wagate.events"
	}
	if c.Name == "" {
		c.Name = "wagate"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

type eventEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	TS    int64       `json:"ts"` // unix 毫秒
}

type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.norm()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish fire-and-forget；失败只打日志，绝不影响发送链路
func (p *Publisher) Publish(event string, data interface{}) {
	if p == nil || p.nc == nil {
		return
	}
	payload, err := json.Marshal(eventEnvelope{Event: event, Data: data, TS: time.Now().UnixMilli()})
	if err != nil {
		logger.Errorf("[Natsx] marshal event: %v", err)
		return
	}
	if err := p.nc.Publish(p.subject+"."+event, payload); err != nil {
		logger.Warnf("[Natsx] publish %s: %v", event, err)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
