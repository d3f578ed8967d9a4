package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-backbone/internal/chat"
	"chat-backbone/internal/db"
	"chat-backbone/internal/handlers"
	"chat-backbone/internal/middleware"
	"chat-backbone/internal/observability"
	"chat-backbone/internal/rabbitmq"
	"chat-backbone/internal/realtime"
	"chat-backbone/internal/repositories"
	"chat-backbone/internal/ws"
)

const serviceName = "chat-backbone"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	shutdownTracer, err := observability.InitTracer(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), serviceName)
	cancel()
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	amqpURL := os.Getenv("AMQP_URL")
	exchange := getEnv("AMQP_EXCHANGE", "chat.broadcast")
	publisher := rabbitmq.NewPublisher(amqpURL, exchange)
	defer publisher.Close()
	log.Printf("broadcast publisher mode=%s", rabbitmq.PublisherMode(publisher))

	secret := []byte(getEnv("JWT_SECRET", "dev-secret"))

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	userRepo := repositories.NewUserRepo(database)

	resolver := chat.NewResolver(conversationRepo)
	sender := chat.NewSender(conversationRepo, messageRepo, notificationRepo, publisher)
	service := chat.NewService(conversationRepo, messageRepo)

	messageFeed := realtime.NewMessageFeed(db.DSN())
	notificationFeed := realtime.NewNotificationFeed(db.DSN())
	broadcast := realtime.NewBroadcast(amqpURL, exchange)
	subscriber := realtime.NewSubscriber(messageFeed, broadcast, realtime.DefaultConfig())

	hub := ws.NewHub()

	conversationHandler := handlers.NewConversationHandler(resolver, service, userRepo)
	messageHandler := handlers.NewMessageHandler(sender, service, conversationRepo)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)
	userHandler := handlers.NewUserHandler(userRepo)

	messageStream := ws.NewMessageStreamHandler(hub, subscriber, conversationRepo, secret)
	notificationStream := ws.NewNotificationStreamHandler(notificationFeed, secret)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(secret)

	router.POST("/conversations/resolve", authMiddleware, conversationHandler.Resolve)
	router.GET("/conversations", authMiddleware, conversationHandler.List)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.List)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.Post)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.POST("/notifications/read", authMiddleware, notificationHandler.MarkRead)
	router.GET("/notifications/unread-count", authMiddleware, notificationHandler.UnreadCount)

	router.GET("/users/search", authMiddleware, userHandler.Search)

	router.GET("/ws/conversations/:conversation_id", messageStream.Handle)
	router.GET("/ws/notifications", notificationStream.Handle)

	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
