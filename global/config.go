package global

import (
	"os"
	"strconv"

	"WaGate/service/storage/redis"
	"WaGate/tools/decode"
	"WaGate/tools/ids"

	"gopkg.in/yaml.v3"
)

func Default() AppConfig {
	return AppConfig{
		Port:          8080,
		GatewayNodeId: 1,
		Device:        "default",
		Send:          SendConfig{DefaultCountryCode: "91"},
		Rate:          RateConfig{MaxPerWindow: 10, MinSpacingMS: 3000, CooldownMS: 30000},
		Reconnect:     ReconnectConfig{DelayMS: 5000, InitRetryMS: 10000, SettleMS: 2500},
		Redis:         RedisConfig{Addr: "127.0.0.1:6379"},
		Nats:          NatsConfig{Subject: "wagate.events"},
	}
}

// Load 读配置文件（yaml，经 mapstructure 宽松解码），再叠加环境变量。
// path 为空或文件不存在时只用默认值 + 环境变量。
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		if err == nil {
			var m map[string]any
			if err := yaml.Unmarshal(raw, &m); err != nil {
				return cfg, err
			}
			decoded, err := decode.DecodeMap[AppConfig](m)
			if err != nil {
				return cfg, err
			}
			merge(&cfg, decoded)
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

// merge 文件里写了的字段才覆盖默认值
func merge(dst *AppConfig, src *AppConfig) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.GatewayNodeId != 0 {
		dst.GatewayNodeId = src.GatewayNodeId
	}
	if src.Device != "" {
		dst.Device = src.Device
	}
	if src.APISecret != "" {
		dst.APISecret = src.APISecret
	}
	if src.Send.DefaultCountryCode != "" {
		dst.Send.DefaultCountryCode = src.Send.DefaultCountryCode
	}
	if src.Rate.MaxPerWindow != 0 {
		dst.Rate.MaxPerWindow = src.Rate.MaxPerWindow
	}
	if src.Rate.MinSpacingMS != 0 {
		dst.Rate.MinSpacingMS = src.Rate.MinSpacingMS
	}
	if src.Rate.CooldownMS != 0 {
		dst.Rate.CooldownMS = src.Rate.CooldownMS
	}
	if src.Reconnect.DelayMS != 0 {
		dst.Reconnect.DelayMS = src.Reconnect.DelayMS
	}
	if src.Reconnect.InitRetryMS != 0 {
		dst.Reconnect.InitRetryMS = src.Reconnect.InitRetryMS
	}
	if src.Reconnect.SettleMS != 0 {
		dst.Reconnect.SettleMS = src.Reconnect.SettleMS
	}
	if src.Redis.Addr != "" {
		dst.Redis = src.Redis
	}
	if src.Nats.URL != "" {
		dst.Nats.URL = src.Nats.URL
	}
	if src.Nats.Subject != "" {
		dst.Nats.Subject = src.Nats.Subject
	}
}

func overlayEnv(cfg *AppConfig) {
	if v := os.Getenv("WAGATE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("WAGATE_DEVICE"); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv("WAGATE_API_SECRET"); v != "" {
		cfg.APISecret = v
	}
	if v := os.Getenv("WAGATE_COUNTRY_CODE"); v != "" {
		cfg.Send.DefaultCountryCode = v
	}
	if v := os.Getenv("WAGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WAGATE_NATS_URL"); v != "" {
		cfg.Nats.URL = v
	}
}

func ConfigIds(cfg AppConfig) {
	ids.SetNodeID(cfg.GatewayNodeId)
}

func ConfigRedis(cfg AppConfig) error {
	return redis.InitRedis(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
