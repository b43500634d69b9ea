// Package httpapi wires the HTTP transport (Gin) to application services,
// the realtime hub, middleware, and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, compression, metrics, CORS, security headers, idempotency,
// authentication and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; all infrastructure injected through Deps
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-chat-realtime/docs"
	"github.com/tbourn/go-chat-realtime/internal/auth"
	"github.com/tbourn/go-chat-realtime/internal/config"
	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/http/handlers"
	"github.com/tbourn/go-chat-realtime/internal/http/middleware"
	"github.com/tbourn/go-chat-realtime/internal/realtime"
	"github.com/tbourn/go-chat-realtime/internal/repo"
	"github.com/tbourn/go-chat-realtime/internal/services"
	"github.com/tbourn/go-chat-realtime/internal/storage"
)

// maxMessageRunes caps the text of a single chat message.
const maxMessageRunes = 2000

// Deps is the infrastructure RegisterRoutes builds services on.
type Deps struct {
	DB     *gorm.DB
	Tokens *auth.Tokens
	Images storage.Images
	// Media serves in-process uploads under /media; nil when an external
	// object store hosts images.
	Media handlers.ObjectReader

	// Registry holds the live room membership of this instance.
	Registry *realtime.Registry
	// Publisher fans room events out: a Dispatcher over Registry, or a
	// RedisRelay wrapping one. Nil means a local Dispatcher.
	Publisher realtime.Publisher
}

// roomRepoShim adapts the repository free functions to the services.RoomRepo
// interface expected by the RoomService.
type roomRepoShim struct{}

func (roomRepoShim) CreateDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	return repo.CreateDirectRoom(ctx, db, a, b)
}

func (roomRepoShim) FindDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	return repo.FindDirectRoom(ctx, db, a, b)
}

func (roomRepoShim) CreateGroupRoom(ctx context.Context, db *gorm.DB, name, adminID string, memberIDs []string, pic string) (*domain.Room, error) {
	return repo.CreateGroupRoom(ctx, db, name, adminID, memberIDs, pic)
}

func (roomRepoShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	return repo.GetRoom(ctx, db, id)
}

func (roomRepoShim) ListRoomsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Room, error) {
	return repo.ListRoomsForUser(ctx, db, userID)
}

func (roomRepoShim) IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.IsMember(ctx, db, roomID, userID)
}

func (roomRepoShim) AddMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.AddMember(ctx, db, roomID, userID)
}

func (roomRepoShim) RemoveMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.RemoveMember(ctx, db, roomID, userID)
}

func (roomRepoShim) RenameGroupRoom(ctx context.Context, db *gorm.DB, roomID, name string) error {
	return repo.RenameGroupRoom(ctx, db, roomID, name)
}

func (roomRepoShim) SetLatestMessage(ctx context.Context, db *gorm.DB, roomID, messageID string) error {
	return repo.SetLatestMessage(ctx, db, roomID, messageID)
}

func (roomRepoShim) CountUsers(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	return repo.CountUsers(ctx, db, ids)
}

// repoStats feeds the handlers' weak ETags from the repository.
type repoStats struct{ db *gorm.DB }

func (s repoStats) RoomsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.RoomsStats(ctx, s.db, userID)
}

func (s repoStats) MessagesStats(ctx context.Context, roomID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.db, roomID)
}

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine and returns the realtime hub backing GET /ws, which the caller shuts
// down on exit.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Compression (never on /ws, whose writer must stay hijackable)
//  7. Metrics
//  8. CORS and Security headers
//
// Inside the authenticated group the identity is known, so the idempotency
// validator runs before the per-user rate limiter and may bypass it on replay.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) *realtime.Hub {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit; inline images travel base64 encoded.
	r.Use(limitBody(bodyLimit(d.Images.MaxBytes)))

	// 6) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/ws", "/media/", "/metrics"}),
	))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:        cfg.Security.EnableHSTS,
		HSTSMaxAge:        cfg.Security.HSTSMaxAge,
		NoStore:           true,
		CacheablePrefixes: []string{"/media/", "/swagger/"},
		EnablePolicy:      true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if d.Media != nil {
		r.GET("/media/*key", handlers.Media(d.Media))
	}

	// Dependency injection: services ← repo/db/storage, hub ← services
	userSvc := &services.UserService{
		DB:        d.DB,
		Tokens:    d.Tokens,
		Passwords: auth.Passwords{MinEntropy: cfg.Auth.PasswordMinEntropy},
		Images:    d.Images,
	}
	roomSvc := services.NewRoomService(d.DB, roomRepoShim{})
	roomSvc.Images = d.Images
	msgSvc := &services.MessageService{
		DB:              d.DB,
		Images:          d.Images,
		MaxContentRunes: maxMessageRunes,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}
	taskSvc := &services.TaskService{DB: d.DB}

	reg := d.Registry
	if reg == nil {
		reg = realtime.NewRegistry()
	}
	pub := d.Publisher
	if pub == nil {
		pub = realtime.NewDispatcher(reg)
	}
	hub := realtime.NewHub(reg, pub, realtime.Options{
		TypingTimeout: cfg.Realtime.TypingTimeout,
		SendBuffer:    cfg.Realtime.SendBuffer,
		Access:        roomSvc,
		Messages:      msgSvc,
		Latest:        roomSvc,
	})
	roomSvc.Live = hub
	msgSvc.Bridge = hub.Bridge()

	h := handlers.New(handlers.Deps{
		Users:    userSvc,
		Rooms:    roomSvc,
		Messages: msgSvc,
		Tasks:    taskSvc,
		Stats:    repoStats{db: d.DB},
	})

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	requireAuth := middleware.Auth(d.Tokens)

	// Websocket: one rate-limited upgrade, then a per-session event budget.
	ws := handlers.NewWS(hub,
		middleware.NewRateLimiter(cfg.Realtime.EventRPS, cfg.Realtime.EventBurst, nil),
		handlers.WSOptions{
			PingInterval:   cfg.Realtime.PingInterval,
			MaxFrameBytes:  cfg.Realtime.MaxFrameBytes,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		})
	r.GET("/ws", requireAuth, rl.Handler(), ws.Serve)

	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"

	// Public: keyed by client IP
	public := api.Group("", rl.Handler())
	{
		public.POST("/auth/register", h.Register)
		public.POST("/auth/login", h.Login)
	}

	// Authenticated: keyed by user
	authed := api.Group("",
		requireAuth,
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200, RoomParam: "id"},
			func(ctx context.Context, userID, roomID, key string, now time.Time) (bool, error) {
				rec, err := repo.GetIdempotency(ctx, d.DB, userID, roomID, key, now)
				if err != nil || rec == nil {
					return false, err
				}
				return true, nil
			},
		),
		rl.Handler(),
	)
	{
		// Users
		authed.GET("/users", h.SearchUsers)
		authed.GET("/users/me", h.Me)
		authed.PUT("/users/me", h.UpdateMe)

		// Rooms
		authed.POST("/rooms", h.AccessRoom)
		authed.GET("/rooms", h.ListRooms)
		authed.POST("/rooms/group", h.CreateGroup)
		authed.GET("/rooms/:id", h.GetRoom)
		authed.PUT("/rooms/:id/name", h.RenameRoom)
		authed.POST("/rooms/:id/members", h.AddMember)
		authed.DELETE("/rooms/:id/members/:userId", h.RemoveMember)

		// Messages
		authed.GET("/rooms/:id/messages", h.ListMessages)
		authed.POST("/rooms/:id/messages", h.PostMessage)

		// Tasks
		authed.POST("/tasks", h.CreateTask)
		authed.GET("/tasks", h.ListTasks)
		authed.PUT("/tasks/:id", h.UpdateTask)
		authed.DELETE("/tasks/:id", h.DeleteTask)
	}

	return hub
}

// bodyLimit sizes the request cap so a maximal inline image still fits after
// base64 expansion and JSON framing. The floor is 1 MiB.
func bodyLimit(maxImage int64) int64 {
	limit := int64(1 << 20)
	if encoded := maxImage*4/3 + 64<<10; encoded > limit {
		limit = encoded
	}
	return limit
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
