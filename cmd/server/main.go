package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/events"
	"github.com/CyberTechArmor/NEON-sub002/internal/gateway"
	"github.com/CyberTechArmor/NEON-sub002/internal/handler"
	"github.com/CyberTechArmor/NEON-sub002/internal/repository"
	"github.com/CyberTechArmor/NEON-sub002/internal/router"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
	"github.com/CyberTechArmor/NEON-sub002/pkg/idgen"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	migrate := flag.Bool("migrate", false, "create or update tables before serving")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	// Check database connection
	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	if *migrate {
		if err := repos.Migrate(ctx); err != nil {
			log.CtxError(ctx, "migration failed: %v", err)
			panic(err)
		}
		log.CtxInfo(ctx, "tables migrated")
	}

	ids, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}

	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	clock := clockwork.NewRealClock()
	tokens := jwt.NewTokenStore(repos.Redis, cfg.JWT.ExpireHours)

	// Initialize services
	convService := service.NewConversationService(repos.Member)
	msgService := service.NewMessageService(repos.Message, repos.Seq, ids, convService, publisher)
	notifyService := service.NewNotificationService(repos.Notification, ids)
	meetingService := service.NewMeetingService(cfg.Meeting, clock, repos.Meeting, ids, notifyService, publisher)
	authService := service.NewAuthService(tokens)

	// Initialize WebSocket server
	wsServer := gateway.NewWsServer(cfg, gateway.Deps{
		Messages: msgService,
		Access:   convService,
		Presence: repos.Presence,
		Tokens:   tokens,
		Redis:    repos.Redis,
		Clock:    clock,
	})
	callService := service.NewCallService(cfg.Call, clock, ids, repos.Call, wsServer, notifyService, publisher)
	wsServer.SetCalls(callService)

	// Every service pushes through the gateway
	msgService.SetPusher(wsServer)
	notifyService.SetPusher(wsServer)
	meetingService.SetPusher(wsServer)
	callService.SetPusher(wsServer)
	authService.SetKicker(wsServer)

	go wsServer.Run(ctx)
	go meetingService.Run(ctx)
	log.CtxInfo(ctx, "websocket sweeper and meeting scheduler started")

	// Initialize handlers
	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Message:      handler.NewMessageHandler(msgService),
		Meeting:      handler.NewMeetingHandler(meetingService),
		Integration:  handler.NewIntegrationHandler(cfg.Integration),
		Presence:     handler.NewPresenceHandler(wsServer),
		Conversation: handler.NewConversationHandler(convService),
	}

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	// Setup routes
	router.SetupRouter(h, cfg, handlers, wsServer, tokens)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	// Start server in goroutine
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")
	cancel()

	// Graceful shutdown
	if err := h.Shutdown(context.Background()); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
