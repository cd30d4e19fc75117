package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/config"
	"kanban-sync/devapi"
	"kanban-sync/internal/consts"
	"kanban-sync/relay"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	var auth *relay.TokenVerifier
	if cfg.AuthTestMode {
		auth = relay.NewTestAuth([]byte(cfg.TestJWTSecret))
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = relay.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer())
	}

	opts := []relay.Option{relay.WithLogger(logger)}
	if redisOpts := cfg.RedisOptions(); redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		opts = append(opts,
			relay.WithDeduper(relay.NewRedisDeduper(rc, cfg.DeduperTTL)),
			relay.WithFanout(relay.NewRedisFanout(rc, cfg.RedisChannelPrefix, logger)),
		)
	} else {
		opts = append(opts, relay.WithDeduper(relay.NewMemoryDeduper(cfg.DeduperTTL)))
	}
	srv := relay.New(auth, opts...)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, consts.HeaderIdempotencyKey},
	}))
	srv.Register(e)
	if cfg.DevAPI {
		devapi.New([]byte(cfg.TestJWTSecret), logger).Register(e, "/api")
		logger.Warn("dev API mounted at /api; data is kept in memory only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := e.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("shutdown")
		}
	}()

	if err := e.Start(cfg.ListenAddr()); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}
