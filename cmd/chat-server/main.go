package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"melodia-chat/internal/auth"
	"melodia-chat/internal/config"
	"melodia-chat/internal/handler"
	"melodia-chat/internal/messaging"
	"melodia-chat/internal/middleware"
	"melodia-chat/internal/observability"
	"melodia-chat/internal/registry"
	"melodia-chat/internal/repository/postgres"
	"melodia-chat/internal/service"
	"melodia-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting chat server")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	// The event mirror is optional. Without a broker URL the service runs
	// standalone and message lifecycle events stay local.
	var rmq *messaging.RabbitMQ
	var publisher service.EventPublisher
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer rmqCancel()

		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		publisher = rmq
		slog.Info("connected to rabbitmq event mirror")
	} else {
		slog.Info("no RABBITMQ_URL configured, event mirror disabled")
	}

	messageRepo := postgres.NewMessageRepository(db)
	chatService := service.NewChatService(messageRepo, publisher)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	reg := registry.New()
	hub := websocket.NewHub(reg)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	chatHandler := handler.NewChatHandler(chatService)
	wsHandler := handler.NewWebSocketHandler(hub, reg, chatService, verifier,
		middleware.ParseOrigins(cfg.AllowedOrigins))

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, rmq))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	readLimiter := middleware.NewRateLimiter(20, 50)
	writeLimiter := middleware.NewRateLimiter(5, 10)
	defer readLimiter.Stop()
	defer writeLimiter.Stop()

	r.Route("/api/chat", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(readLimiter.Middleware())

			r.Get("/messages", chatHandler.GetMessages)
			r.Get("/messages/history", chatHandler.GetHistory)
			r.Get("/rooms", chatHandler.ListRooms)
			r.Get("/rooms/{room}/statistics", chatHandler.RoomStatistics)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(verifier))
			r.Use(writeLimiter.Middleware())

			r.Post("/messages", chatHandler.SendMessage)
			r.Delete("/messages/{id}", chatHandler.DeleteMessage)
		})
	})

	// Auth handled internally to support query param tokens
	r.Get("/ws/chat", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}
