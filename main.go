package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"WaGate/global"
	"WaGate/logger"
	mid "WaGate/middleware"
	midsec "WaGate/middleware/security"
	"WaGate/module/gateway"
	"WaGate/service/natsx"
	"WaGate/service/ratelimit"
	"WaGate/service/send"
	"WaGate/service/session"
	"WaGate/service/status"
	rds "WaGate/service/storage/redis"
	"WaGate/service/transport"
	"WaGate/tools/safe"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1) 配置
	cfgPath := os.Getenv("WAGATE_CONFIG")
	if cfgPath == "" {
		cfgPath = "wagate.yaml"
	}
	cfg, err := global.Load(cfgPath)
	if err != nil {
		logger.Errorf("[Main] load config: %v", err)
		os.Exit(1)
	}
	global.ConfigIds(cfg)
	midsec.SetSecret(cfg.APISecret)

	// 2) 凭证存储（Redis 不可用时降级为不持久化）
	var store session.CredentialStore
	if err := global.ConfigRedis(cfg); err != nil {
		logger.Warnf("[Main] redis unavailable, credentials will not persist: %v", err)
	} else {
		store = session.NewRedisStore(rds.GetRedis())
	}

	// 3) 事件镜像（可选）
	var pub *natsx.Publisher
	if cfg.Nats.URL != "" {
		pub, err = natsx.NewPublisher(natsx.Config{URL: cfg.Nats.URL, Subject: cfg.Nats.Subject})
		if err != nil {
			logger.Warnf("[Main] nats unavailable, event mirror disabled: %v", err)
		}
	}

	// 4) 边车 transport
	bridgeURL := os.Getenv("WAGATE_BRIDGE_URL")
	if bridgeURL == "" {
		bridgeURL = "http://127.0.0.1:9090"
	}
	tr := transport.NewBridge(transport.BridgeConf{BaseURL: bridgeURL})

	// 5) 核心组件
	sup := session.NewSupervisor(tr, store, session.Conf{
		Device:         cfg.Device,
		ReconnectDelay: time.Duration(cfg.Reconnect.DelayMS) * time.Millisecond,
		InitRetryDelay: time.Duration(cfg.Reconnect.InitRetryMS) * time.Millisecond,
		SettleDelay:    time.Duration(cfg.Reconnect.SettleMS) * time.Millisecond,
	})
	rl := ratelimit.NewLimiter(ratelimit.Conf{
		MaxPerWindow: cfg.Rate.MaxPerWindow,
		MinSpacing:   time.Duration(cfg.Rate.MinSpacingMS) * time.Millisecond,
		Cooldown:     time.Duration(cfg.Rate.CooldownMS) * time.Millisecond,
	})
	pipeline := send.NewPipeline(sup, rl, tr, send.Conf{
		DefaultCountryCode: cfg.Send.DefaultCountryCode,
	})
	var hub *status.Hub
	if pub != nil {
		hub = status.NewHub(sup, rl, pub)
	} else {
		hub = status.NewHub(sup, rl, nil)
	}

	safe.SafeGo("supervisor.run", sup.Run)
	safe.SafeGo("ratelimit.ticker", rl.RunTicker)
	sup.Start()

	// 6) HTTP + WebSocket
	h := gateway.NewHandler(pipeline, sup, hub, tr, cfg.Send.DefaultCountryCode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/events", hub.HandleEvents)
	mid.GET(r, "/status", h.HandlerStatus, mid.RouteOpt{IsAuth: false})
	mid.GET(r, "/chats", h.HandlerChats, mid.RouteOpt{IsAuth: false})
	mid.GET(r, "/contacts", h.HandlerContacts, mid.RouteOpt{IsAuth: false})
	mid.POST(r, "/send-message", h.HandlerSendMessage, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/check-number", h.HandlerCheckNumber, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/restart", h.HandlerRestart, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/clear-session", h.HandlerClearSession, mid.RouteOpt{IsAuth: true})

	safe.SafeGo("http.serve", func() {
		logger.Infof("[HTTP] Listening on :%d", cfg.Port)
		if err := r.Run(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Errorf("[HTTP] server failed: %v", err)
			os.Exit(1)
		}
	})

	// 7) 信号退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("[Main] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rl.Close()
	sup.Close()
	if err := tr.DestroySession(ctx); err != nil {
		logger.Warnf("[Main] destroy session: %v", err)
	}
	hub.Close()
	pub.Close()
	_ = rds.CloseRedis()
}
