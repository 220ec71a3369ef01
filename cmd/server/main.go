// Package main runs the live session coordination HTTP server with
// WebSocket side channel and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/audit"
	"github.com/kurban-cebimde/live-backend/internal/auth"
	"github.com/kurban-cebimde/live-backend/internal/middleware"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/moderation"
	"github.com/kurban-cebimde/live-backend/internal/participants"
	"github.com/kurban-cebimde/live-backend/internal/provider"
	"github.com/kurban-cebimde/live-backend/internal/realtime"
	"github.com/kurban-cebimde/live-backend/internal/recordings"
	"github.com/kurban-cebimde/live-backend/internal/sessions"
	"github.com/kurban-cebimde/live-backend/internal/telemetry"
	"github.com/kurban-cebimde/live-backend/internal/tokens"
	"github.com/kurban-cebimde/live-backend/internal/worker"
	"github.com/kurban-cebimde/live-backend/pkg/database"
	"github.com/kurban-cebimde/live-backend/pkg/queue"
	"github.com/kurban-cebimde/live-backend/pkg/redis"
	"github.com/kurban-cebimde/live-backend/pkg/response"
	"github.com/kurban-cebimde/live-backend/pkg/retry"
	"github.com/kurban-cebimde/live-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEUrls))
	for _, u := range cfg.WebRTC.ICEUrls {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
	}.WithDefaults()

	// Media room provider
	var prov provider.RoomProvider
	switch cfg.Provider.Name {
	case "zego":
		prov = provider.NewZego(provider.ZegoConfig{
			AppID:        cfg.Zego.AppID,
			ServerSecret: cfg.Zego.ServerSecret,
			URL:          cfg.Zego.URL,
		}, logger)
	default:
		prov = provider.NewLiveKit(provider.LiveKitConfig{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
		}, retryPolicy, logger)
	}
	logger.Info("media provider configured", zap.String("provider", prov.Name()))

	// Participant registry and telemetry aggregator
	registry := participants.NewRegistry(
		time.Duration(cfg.Live.ReconnectGraceSec)*time.Second,
		cfg.Live.AllowCoPublish,
		logger,
	)
	aggregator := telemetry.NewAggregator(prov, registry, cfg.Telemetry, nil, logger)

	// Session lifecycle
	sessionRepo := sessions.NewRepository(pool)
	resultStore := sessions.NewRedisResultStore(rdb.Client)
	sessionService := sessions.NewService(sessionRepo, prov, registry, aggregator, resultStore, hub, cfg.Live, logger)

	// Join tokens
	tokenStore := tokens.NewRedisStore(rdb.Client)
	issuer := tokens.NewIssuer(sessionRepo, prov, tokenStore, cfg.Live, logger)
	sessionService.SetTokenCheck(issuer)

	// Audit trail, recordings and jobs
	auditRepo := audit.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Moderation controller; telemetry alerts land here (audit + broadcast).
	modCtrl := moderation.NewController(sessionService, issuer, registry, prov, auditRepo, hub, recordingRepo, resultStore, cfg.Live, logger)
	aggregator.SetAlertSink(modCtrl.OnAlert)

	// Push metric ticks onto the session side channel.
	aggregator.SetTickSink(func(sessionID uuid.UUID, snap models.MetricsSnapshot) {
		hub.BroadcastToSession(sessionID, "metrics_tick", snap)
	})

	// Webhook validation is provider-specific; only LiveKit signs deliveries.
	var recValidator recordings.WebhookValidator
	var partValidator participants.WebhookValidator
	if lk, ok := prov.(*provider.LiveKit); ok {
		recValidator = lk
		partValidator = lk
	} else {
		logger.Warn("webhook signature validation disabled for this provider")
	}

	// Handlers
	sessionHandler := sessions.NewHandler(sessionService, aggregator, jobQueue, logger)
	tokenHandler := tokens.NewHandler(issuer, iceServers, logger)
	telemetryHandler := telemetry.NewHandler(aggregator, logger)
	participantHandler := participants.NewHandler(registry, logger)
	participantWebhook := participants.NewWebhookHandler(registry, sessionRepo, partValidator, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, s3Client, logger)
	recordingWebhook := recordings.NewWebhookHandler(recordingRepo, jobQueue, recValidator, logger)
	moderationHandler := moderation.NewHandler(modCtrl, auditRepo, logger)
	processor := worker.NewProcessor(recordingRepo, s3Client, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "provider": prov.Name()}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Lifecycle commands (operators and admins)
		api.POST("/live/create", middleware.RequireRole("admin", "operator"), sessionHandler.Create)
		lifecycle := api.Group("/live/sessions/:id", middleware.RequireRole("admin", "operator"))
		{
			lifecycle.POST("/prepare", sessionHandler.Prepare)
			lifecycle.POST("/start", sessionHandler.Start)
			lifecycle.POST("/pause", sessionHandler.Pause)
			lifecycle.POST("/resume", sessionHandler.Resume)
			lifecycle.POST("/stop", sessionHandler.Stop)
			lifecycle.POST("/reset", sessionHandler.Reset)
			lifecycle.DELETE("", sessionHandler.Delete)
		}

		// Read surface
		api.GET("/live/streams", sessionHandler.List)
		api.GET("/live/streams/:id", sessionHandler.Get)
		api.GET("/live/streams/:id/metrics", middleware.RequireRole("admin", "operator"), telemetryHandler.Latest)
		api.GET("/live/streams/:id/metrics/history", middleware.RequireRole("admin", "operator"), telemetryHandler.History)
		api.GET("/live/streams/:id/participants", middleware.RequireRole("admin", "operator"), participantHandler.ListActive)
		api.GET("/live/streams/:id/participants/history", middleware.RequireRole("admin", "operator"), participantHandler.History)
		api.GET("/live/streams/:id/recordings", middleware.RequireRole("admin", "operator"), recordingHandler.ListBySession)
		api.GET("/recordings/:id/download-url", middleware.RequireRole("admin", "operator"), recordingHandler.GenerateDownloadURL)

		// Join tokens (role-level checks happen in the issuer)
		api.POST("/live/token", tokenHandler.Issue)

		// Moderation (admin only)
		admin := api.Group("/admin/live/:id", middleware.RequireRole("admin"))
		{
			admin.POST("/force-end", moderationHandler.ForceEnd)
			admin.POST("/restart-room", moderationHandler.RestartRoom)
			admin.POST("/revoke-token", moderationHandler.RevokeToken)
			admin.POST("/toggle-recording", moderationHandler.ToggleRecording)
			admin.POST("/banner", moderationHandler.SendBanner)
			admin.POST("/backup", moderationHandler.SwitchToBackup)
			admin.GET("/audit", moderationHandler.AuditTrail)
		}
	}

	// Webhooks (no JWT; signed delivery validated in handler when configured)
	router.POST("/webhooks/provider/events", participantWebhook.RoomEvent)
	router.POST("/webhooks/provider/egress", recordingWebhook.EgressEnded)

	// WebSocket side channel (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (recording and archive transfer to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go processor.Run(workerCtx)
		logger.Info("job worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
