package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/clients/gcp"
	"github.com/yungbote/atelier-backend/internal/http/handlers"
	"github.com/yungbote/atelier-backend/internal/middleware"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/realtime/bus"
	"github.com/yungbote/atelier-backend/internal/server"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/space"
)

type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine
	Hub    *realtime.Hub
	Spaces *space.Manager

	eventBus     bus.Bus
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	hub := realtime.NewHub(log)

	// The redis mirror is optional; without REDIS_ADDR broadcasts stay
	// in-process only.
	var eventBus bus.Bus
	if b, err := bus.NewRedisBus(log); err != nil {
		log.Warn("Event bus disabled", "error", err)
	} else {
		eventBus = b
		hub.SetMirror(func(spaceID uuid.UUID, raw []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := eventBus.Publish(ctx, spaceID, raw); err != nil {
				log.Warn("Event bus publish failed", "error", err)
			}
		})
	}

	blobs, err := gcp.NewBucketService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	dispatcher, err := services.NewHTTPDispatcher(cfg.GeneratorURL)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init generation dispatcher: %w", err)
	}

	membership, err := services.NewHTTPMembershipResolver(log, cfg.MembershipURL)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init membership resolver: %w", err)
	}
	verifier := services.NewJWTVerifier(log, cfg.JWTSecretKey)

	spaces := space.NewManager(cfg.DataDir, hub, blobs, dispatcher, log)

	authMW := middleware.NewAuthMiddleware(log, verifier, membership, cfg.InternalAPIToken)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: server.SplitOrigins(cfg.AllowedOrigins),
		AuthMiddleware: authMW,
		WSHandler:      handlers.NewWSHandler(log, hub, spaces, verifier, membership),
		SpaceHandler:   handlers.NewSpaceHandler(log, spaces),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Router:       router,
		Hub:          hub,
		Spaces:       spaces,
		eventBus:     eventBus,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run() error {
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	return a.Router.Run(addr)
}

func (a *App) Shutdown(ctx context.Context) {
	a.Spaces.Close()
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			a.Log.Warn("Event bus close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
