package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/access"
	"github.com/darsy-app/darsy-live-api/internal/config"
	"github.com/darsy-app/darsy-live-api/internal/database"
	"github.com/darsy-app/darsy-live-api/internal/handler"
	"github.com/darsy-app/darsy-live-api/internal/middleware"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/observability"
	"github.com/darsy-app/darsy-live-api/internal/repository"
	"github.com/darsy-app/darsy-live-api/internal/router"
	"github.com/darsy-app/darsy-live-api/internal/service"
	"github.com/darsy-app/darsy-live-api/pkg/agora"
	cloud "github.com/darsy-app/darsy-live-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomToken{},
		&models.ChatMessage{},
		&models.MessageReaction{},
		&models.ReadReceipt{},
		&models.ReactionAnalytics{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	tokenBuilder, err := agora.New(agora.Config{
		AppID:       cfg.AgoraAppID,
		Certificate: cfg.AgoraCertificate,
	})
	if err != nil {
		log.Fatalf("failed to create token builder: %v", err)
	}

	var storage service.FileStorage
	if cfg.CloudinaryCloud != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloud,
			APIKey:    cfg.CloudinaryKey,
			APISecret: cfg.CloudinarySecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = uploader
	}

	observability.RegisterMetrics()

	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	oracle := access.NewOracle(db)

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()

	bus := service.NewRoomBus(redisClient, cfg.RealtimeChannel, natsConn, logger)
	bus.Start(busCtx)

	roomService := service.NewRoomService(roomRepo, oracle, validate, logger)
	chatService := service.NewChatService(messageRepo, roomRepo, oracle, bus, storage, cfg.MaxUploadMB, validate, logger)
	reactionService := service.NewReactionService(reactionRepo, messageRepo, roomRepo, oracle, validate, logger)
	tokenService := service.NewTokenService(tokenRepo, roomRepo, tokenBuilder, redisClient, cfg.TokenTTL, logger)
	realtimeService := service.NewRealtimeService(bus, chatService, validate, logger)

	roomHandler := handler.NewRoomHandler(roomService, tokenService, validate, logger)
	chatHandler := handler.NewChatHandler(chatService, reactionService, validate, logger)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, roomService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RoomHandler:     roomHandler,
		ChatHandler:     chatHandler,
		RealtimeHandler: realtimeHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
