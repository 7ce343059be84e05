package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatify-service/internal/auth"
	"chatify-service/internal/db"
	"chatify-service/internal/feed"
	"chatify-service/internal/handlers"
	"chatify-service/internal/logger"
	"chatify-service/internal/middleware"
	"chatify-service/internal/observability"
	"chatify-service/internal/presence"
	"chatify-service/internal/rabbitmq"
	"chatify-service/internal/repositories"
	"chatify-service/internal/telemetry"
	"chatify-service/internal/translate"
	"chatify-service/internal/ws"
)

const serviceName = "chatify-service"

func main() {
	_ = godotenv.Load()

	database, err := db.Connect()
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, os.Getenv("OTLP_ENDPOINT"))
	if err != nil {
		logger.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "chatify.events"))
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Infof("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.chatify", serviceName, getEnv("ENVIRONMENT", "dev"))

	tracker := newPresenceTracker(ctx)

	tokens := auth.NewTokenManager(getEnv("JWT_SECRET", "dev-secret-change-me"), 24*time.Hour)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	conversationFeed := feed.New(messageRepo)
	translator := translate.NewGeminiClient()
	pipeline := translate.NewPipeline(messageRepo, translator, conversationFeed, time.Minute)

	hub := ws.NewHub(conversationFeed, tracker)

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit)
	contactsHandler := handlers.NewContactsHandler(userRepo, messageRepo, tracker)
	chatHandler := handlers.NewChatHandler(userRepo, messageRepo, pipeline, conversationFeed, audit)
	conversationWS := ws.NewConversationWebSocketHandler(hub, userRepo, tokens)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	router.GET("/users/me", authMiddleware, authHandler.Me)
	router.PUT("/users/me", authMiddleware, authHandler.UpdateProfile)

	router.GET("/contacts", authMiddleware, contactsHandler.ListContacts)

	router.GET("/conversations/:friend_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/conversations/:friend_id/messages", authMiddleware, chatHandler.PostMessage)
	router.GET("/conversations/:friend_id/messages/:message_id", authMiddleware, chatHandler.GetMessage)
	router.POST("/conversations/:friend_id/messages/:message_id/variant", authMiddleware, chatHandler.CycleVariant)
	router.POST("/conversations/:friend_id/read", authMiddleware, chatHandler.MarkRead)

	router.GET("/ws/conversations/:friend_id", conversationWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

func newPresenceTracker(ctx context.Context) presence.Tracker {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Infof("presence disabled, using noop: empty redis addr")
		return presence.NoopTracker{}
	}

	dbNum, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tracker, err := presence.NewRedisTracker(ctx, addr, os.Getenv("REDIS_PASSWORD"), dbNum, 5*time.Minute)
	if err != nil {
		logger.Warnf("presence disabled, using noop: %v", err)
		return presence.NoopTracker{}
	}
	logger.Infof("presence connected addr=%s", addr)
	return tracker
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
