package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	fiber_swagger "github.com/gofiber/swagger"
	"go.uber.org/zap"

	_ "family_messaging_service/cmd/messaging_service/docs"
	chatapp "family_messaging_service/internal/chat/app"
	chatdomain "family_messaging_service/internal/chat/domain"
	chatrepo "family_messaging_service/internal/chat/repository"
	chatrouter "family_messaging_service/internal/chat/router"
	directorydomain "family_messaging_service/internal/directory/domain"
	directoryrepo "family_messaging_service/internal/directory/repository"
	notificationapp "family_messaging_service/internal/notification/app"
	notificationdomain "family_messaging_service/internal/notification/domain"
	notificationrepo "family_messaging_service/internal/notification/repository"
	notificationrouter "family_messaging_service/internal/notification/router"
	"family_messaging_service/pkg/config"
	"family_messaging_service/pkg/database"
	"family_messaging_service/pkg/encrypt"
	"family_messaging_service/pkg/logger"
	"family_messaging_service/pkg/middlewares"
	testtool "family_messaging_service/pkg/test_tool"
)

// @title Family Messaging Service API
// @version 1.0
// @description Chats, messages, mentions, reactions and notifications for the family space.
func main() {
	logger.Log = logger.Initialize(config.EnvConfig.MessagingService, config.EnvConfig.MessagingServiceLogPath)
	cfg := config.LoadConfig[config.Messaging](config.EnvConfig.MessagingService, config.EnvConfig.MessagingServiceYAMLPath)
	testtool.StartPprof()

	ctx := context.Background()

	conn := database.Connection{
		ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password,
			cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}

	gormDB, err := database.NewGormConnection(conn)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgres after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}
	if err := gormDB.AutoMigrate(
		&directorydomain.User{},
		&chatdomain.Chat{},
		&chatdomain.ChatMembership{},
		&chatdomain.Message{},
		&chatdomain.Attachment{},
		&chatdomain.MessageReaction{},
		&chatdomain.MessageReadReceipt{},
		&notificationdomain.Notification{},
	); err != nil {
		logger.Log.Fatal("migration failed", zap.Error(err))
	}

	pgPool, err := database.NewDatabaseConnection(conn)
	if err != nil {
		logger.Log.Fatal("Unable to connect pgx pool after retries", zap.Error(err))
	}
	defer pgPool.Close()

	masterName, sentinel := config.GetRedisSetting()
	client, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	cipher, err := encrypt.NewContentCipher(cfg.ContentKey)
	if err != nil {
		logger.Log.Fatal("content cipher init failed", zap.Error(err))
	}

	// repositories
	chatRepo := chatrepo.NewChatRepository(gormDB)
	msgRepo := chatrepo.NewMessageRepository(gormDB)
	notificationRepo := notificationrepo.NewNotificationRepository(gormDB)
	userRepo := directoryrepo.NewUserRepository(pgPool)
	pubsub := chatrepo.NewRedisPubSub(client)

	// usecases and fan-out
	renderer := chatapp.NewRenderer(cipher)
	broadcaster := chatapp.NewBroadcaster(pubsub, chatRepo, userRepo, renderer)
	tracker := chatapp.NewPresenceTracker(cfg.TypingTTL, func(chatID, userID, name string, isTyping bool) {
		broadcaster.BroadcastTyping(ctx, chatID, userID, name, isTyping)
	})
	mentions := chatapp.NewMentionService(userRepo)
	dispatcher := notificationapp.NewDispatcher(notificationRepo, chatRepo, msgRepo, userRepo, broadcaster)
	chatUC := chatapp.NewChatUseCase(chatRepo, userRepo)
	messageUC := chatapp.NewMessageUseCase(msgRepo, chatRepo, userRepo, cipher, mentions, renderer, broadcaster, dispatcher, tracker)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.MessagingServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	// swagger stays public, everything after runs behind JWT
	r.Get("/swagger/*", fiber_swagger.HandlerDefault)
	r.Use(middlewares.JWTMiddleware())

	chatrouter.RegisterRoutes(
		r,
		chatapp.NewChatWebsocketHandler(chatUC, messageUC, chatRepo, pubsub),
		chatapp.NewChatHTTPHandler(chatUC),
		chatapp.NewMessageHTTPHandler(messageUC),
		chatapp.NewMentionHTTPHandler(userRepo, chatRepo),
	)
	notificationrouter.RegisterRoutes(r, notificationapp.NewNotificationHTTPHandler(notificationRepo, msgRepo, userRepo, broadcaster))

	port := ":" + cfg.Port
	log.Printf("Messaging Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
