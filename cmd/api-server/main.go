// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/apiserver/server"
	"foodnextdoor/internal/cache"
	"foodnextdoor/internal/config"
	"foodnextdoor/internal/eventbus"
	"foodnextdoor/internal/infra"
	"foodnextdoor/internal/mailer"
	"foodnextdoor/internal/storage"
	"foodnextdoor/internal/storage/driver/postgres"
	"foodnextdoor/internal/storage/driver/sqlite"
	"foodnextdoor/internal/storage/mongostore"
	"foodnextdoor/internal/storage/repository"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化持久化存储（MongoDB / PostgreSQL / SQLite）
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.DatabaseDriver, err)
	}
	defer store.Close()
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	// 初始化 Redis（令牌缓存、认证事件总线）
	// Redis 不可用时退回内存实现，便于本地开发
	tokens, bus := openRedis(cfg.RedisURL)
	defer bus.Close()

	// 邮件发送：未配置 SMTP 时退回空实现
	var mail mailer.Mailer
	if cfg.SMTP.Host != "" {
		smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			log.Fatalf("Failed to set up SMTP mailer: %v", err)
		}
		defer smtpMailer.Close()
		mail = smtpMailer
		log.Printf("SMTP mailer enabled [host=%s]", cfg.SMTP.Host)
	} else {
		mail = mailer.NewNoOpMailer()
		log.Println("SMTP not configured, mail delivery disabled")
	}

	authCfg := auth.Config{
		JWTSecret:       cfg.JWTSecret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
		VerifyTokenTTL:  cfg.Auth.VerifyTokenTTL,
	}
	if !authCfg.Enabled() {
		log.Println("WARNING: JWT_SECRET not set, authentication disabled")
	}

	h := server.NewHandler(store, tokens, bus, mail, authCfg)

	// 监听认证事件（指标统计 + WebSocket 推送依赖总线订阅）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.WatchAuthEvents(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openStore 按配置的驱动打开存储层
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case "mongodb":
		return mongostore.NewStore(cfg.DatabaseURL, cfg.MongoDatabase)
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.DatabaseDriver)
	}
}

// openRedis 连接 Redis，失败时退回内存实现
func openRedis(redisURL string) (cache.TokenCache, eventbus.EventBus) {
	redisInfra, err := infra.NewRedisInfra(redisURL)
	if err != nil {
		log.Printf("Redis unavailable (%v), falling back to in-memory cache and event bus", err)
		return cache.NewMemoryCache(), eventbus.NewMemoryBus()
	}
	log.Println("Connected to Redis")
	return redisInfra.TokenCache(), redisInfra.EventBus()
}
