package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"sudooom.social.client/internal/client"
	"sudooom.social.client/internal/config"
	"sudooom.social.client/internal/forwarder"
	"sudooom.social.client/internal/handler"
	"sudooom.social.client/internal/health"
	"sudooom.social.client/internal/nats"
	"sudooom.social.client/internal/router"
	"sudooom.social.client/internal/session"
	"sudooom.social.client/internal/validation"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load(config.GetEnv("CLIENT_CONFIG", "configs/config.yaml"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	// 创建上下文
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接 Redis（状态持久化）
	var redisClient *redis.Client
	if cfg.Store.Backend == "redis" {
		redisClient = connectRedis(cfg.Redis)
		defer redisClient.Close()
		logger.Info("Connected to Redis", "addr", cfg.Redis.RedisAddr())
	}

	// 连接 NATS（事件通道使用 nats 传输时）
	var nc *natsgo.Conn
	if cfg.Live.Transport == "nats" {
		natsClient, err := nats.NewClient(cfg.NATS, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		nc = natsClient.Conn()
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	fwd := forwarder.New(cfg.Gateway.BaseURL, cfg.Session.CookieName, cfg.Gateway.Timeout,
		forwarder.WithLogger(logger))

	factory := client.NewFactory(ctx, cfg, client.Infra{
		Forwarder: fwd,
		Redis:     redisClient,
		NATS:      nc,
		Dialer:    &websocket.Dialer{HandshakeTimeout: cfg.Gateway.Timeout},
		Logger:    logger,
	})
	hub := client.NewHub(factory, cfg.Session.IdleTimeout, cfg.Session.ReapEvery, logger)

	// 设置路由
	r := router.SetupRouter(cfg, session.NewDecoder(cfg.Session.JWTSecret), hub, router.Handlers{
		Proxy:    handler.NewProxyHandler(fwd, cfg.Session.CookieName),
		Client:   handler.NewClientHandler(),
		Validate: handler.NewValidateHandler(validation.NewValidator()),
		Live:     handler.NewLiveHandler(cfg.CORS.AllowedOrigins, logger),
		Health:   health.NewChecker(cfg.App.Name, nc, redisClient, hub),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Client server started", "addr", srv.Addr, "mode", cfg.App.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.RunReaper(gctx)
	})
	g.Go(func() error {
		// 优雅退出
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.CloseAll()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
