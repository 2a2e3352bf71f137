package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linguaconnect/infrastructure/cache"
	"linguaconnect/infrastructure/db"
	"linguaconnect/infrastructure/ratelimit"
	"linguaconnect/infrastructure/ws"
	"linguaconnect/internal/config"
	httpHandler "linguaconnect/internal/delivery/http"
	"linguaconnect/internal/delivery/websocket"
	"linguaconnect/internal/entity"
	"linguaconnect/internal/presence"
	"linguaconnect/internal/repository"
	"linguaconnect/internal/repository/memrepo"
	"linguaconnect/internal/usecase"
	"linguaconnect/pkg/jwt"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	var (
		userRepo    repository.UserRepository
		chatRepo    repository.ChatRepository
		messageRepo repository.MessageRepository
		health      httpHandler.HealthChecker
		mongoDb     *db.MongoStore
	)
	switch cfg.Storage {
	case "memory":
		log.Println("Using in-memory storage")
		seeded := make([]entity.User, 0, len(cfg.SeedUsers))
		for _, id := range cfg.SeedUsers {
			seeded = append(seeded, entity.User{Id: id, Username: id, Name: id})
		}
		userRepo = memrepo.NewUserRepository(seeded...)
		chatRepo = memrepo.NewChatRepository()
		messageRepo = memrepo.NewMessageRepository()
	default:
		var err error
		mongoDb, err = db.NewMongoStore(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			log.Fatalf("mongodb: %v", err)
		}
		if err := mongoDb.EnsureIndexes(ctx); err != nil {
			log.Fatalf("mongodb: %v", err)
		}
		log.Println("Connected to MongoDB")

		userRepo = repository.NewUserRepository(*mongoDb.DB)
		chatRepo = repository.NewChatRepository(*mongoDb.DB)
		messageRepo = repository.NewMessageRepository(*mongoDb.DB)
		health = mongoDb
	}

	// Initialize use cases
	userUc := usecase.NewUserUseCase(userRepo)
	chatUc := usecase.NewChatUsecase(chatRepo, userRepo, messageRepo)
	messageUc := usecase.NewMessageUseCase(messageRepo, chatRepo)

	// Nobody is connected yet, so flags left over from a previous run are stale.
	if err := userUc.ResetPresence(ctx); err != nil {
		log.Printf("Failed to reset presence flags: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	registry := presence.NewRegistry(userUc, websocket.NewStatusBroadcaster(hub))
	go registry.Run(ctx)

	websocketH := websocket.NewWebsocketHandler(hub, registry, userUc, messageUc, ws.ClientConfig{
		WriteWait:     cfg.Realtime.WriteWait,
		PongWait:      cfg.Realtime.PongWait,
		PingInterval:  cfg.Realtime.PingInterval,
		MaxFrameBytes: cfg.Realtime.MaxFrameBytes,
		SendBuffer:    cfg.Realtime.SendBuffer,
	})
	knownUsers := cache.NewMemCache(time.Minute)
	defer knownUsers.Close()
	websocketH.SetUserCache(knownUsers)
	hub.SetOnClientUnregister(websocketH.HandleUnregisterClient)

	log.Println("Websocket is running")

	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		log.Printf("Using Redis rate limiter at %s", cfg.Redis.Addr)
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		counters := cache.NewMemCache(time.Minute)
		defer counters.Close()
		limiter = ratelimit.NewMemoryLimiter(counters)
	}

	var authMiddleware *httpHandler.AuthMiddleware
	if cfg.AuthEnabled() {
		jwtManager := jwt.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenDuration)
		websocketH.SetTokenValidator(jwtManager)
		authMiddleware = httpHandler.NewAuthMiddleware(jwtManager)
	} else {
		log.Println("Warning: JWT_SECRET not set, REST and websocket routes are unauthenticated")
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(httpHandler.CORS(cfg.Server.AllowedOrigin))

	// Initialize handlers
	httpH := httpHandler.NewHttpHandler(chatUc, messageUc, userUc, registry, websocketH, health)

	// Map routes
	httpHandler.MapHttpRoutes(router, httpH, websocketH, authMiddleware, limiter, ratelimit.HTTPRule(cfg.RateLimit.Requests, cfg.RateLimit.Window))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("HTTP server is running on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	hub.Stop()
	if mongoDb != nil {
		if err := mongoDb.Close(shutdownCtx); err != nil {
			log.Printf("MongoDB disconnect error: %v", err)
		}
	}
}
