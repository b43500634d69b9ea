// Command server runs the chat HTTP API and realtime websocket gateway.
//
// @title          Chat Realtime API
// @version        1.0
// @description    Rooms, messages and live presence over REST and websockets.
// @BasePath       /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/auth"
	"github.com/tbourn/go-chat-realtime/internal/config"
	httpapi "github.com/tbourn/go-chat-realtime/internal/http"
	"github.com/tbourn/go-chat-realtime/internal/observability"
	"github.com/tbourn/go-chat-realtime/internal/realtime"
	"github.com/tbourn/go-chat-realtime/internal/repo"
	"github.com/tbourn/go-chat-realtime/internal/storage"
	"github.com/tbourn/go-chat-realtime/internal/sysutil"
)

const (
	shutdownTimeout = 15 * time.Second
	purgeInterval   = 10 * time.Minute
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := observability.Identity{Version: sysutil.Version(), InstanceID: sysutil.InstanceID()}
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, id)
	if err != nil {
		return err
	}

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DBDriver,
		Path:    cfg.DBPath,
		DSN:     cfg.DBDSN,
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	images, media, err := openImages(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	reg := realtime.NewRegistry()
	local := realtime.NewDispatcher(reg)
	var (
		pub   realtime.Publisher = local
		relay *realtime.RedisRelay
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		relay = realtime.NewRedisRelay(rdb, cfg.Redis.Channel, local)
		pub = relay
	}

	deps := httpapi.Deps{
		DB:        db,
		Tokens:    auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTTTL),
		Images:    images,
		Registry:  reg,
		Publisher: pub,
	}
	if media != nil {
		deps.Media = media
	}
	r := gin.New()
	hub := httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", id.Version).
			Str("instance", id.InstanceID).
			Bool("relay", relay != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	g.Go(func() error {
		purgeIdempotency(gctx, db)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Shutdown does not track hijacked websocket connections. Closing the
		// hub's sessions ends their write pumps, which close the sockets.
		err := srv.Shutdown(sctx)
		hub.Shutdown()
		if oerr := otelShutdown(sctx); oerr != nil {
			log.Warn().Err(oerr).Msg("otel shutdown")
		}
		return err
	})

	return g.Wait()
}

// openImages selects MinIO when an endpoint is configured and the in-process
// store served under /media otherwise.
func openImages(ctx context.Context, oc config.ObjectStoreConfig) (storage.Images, *storage.MemoryStore, error) {
	if oc.Endpoint == "" {
		mem := storage.NewMemoryStore("/media")
		return storage.Images{Store: mem, MaxBytes: oc.MaxImageBytes}, mem, nil
	}
	store, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:      oc.Endpoint,
		AccessKey:     oc.AccessKey,
		SecretKey:     oc.SecretKey,
		Bucket:        oc.Bucket,
		UseSSL:        oc.UseSSL,
		PublicBaseURL: oc.PublicBaseURL,
	})
	if err != nil {
		return storage.Images{}, nil, err
	}
	return storage.Images{Store: store, MaxBytes: oc.MaxImageBytes}, nil, nil
}

func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
