package global

type AppConfig struct {
	Port          int    // http 启动端口
	GatewayNodeId int64  // 节点的Id（雪花ID用）
	Device        string // 设备名，也是凭证持久化的 key
	APISecret     string // 变更类接口的鉴权密钥；为空则不鉴权

	Send      SendConfig
	Rate      RateConfig
	Reconnect ReconnectConfig
	Redis     RedisConfig
	Nats      NatsConfig
}

type SendConfig struct {
	DefaultCountryCode string // 裸 10 位号补的国码
}

type RateConfig struct {
	MaxPerWindow int // 60s 窗口内封顶
	MinSpacingMS int // 相邻发送最小间隔
	CooldownMS   int // 远端限流确认后的惩罚等待
}

type ReconnectConfig struct {
	DelayMS     int // 断开后自动重连延迟
	InitRetryMS int // 会话建立失败的退避
	SettleMS    int // 手动重启的落定等待
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NatsConfig struct {
	URL     string // 为空不启用事件镜像
	Subject string
}
