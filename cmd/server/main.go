package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/scriptreel/api/internal/client"
	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/handler"
	"github.com/scriptreel/api/internal/middleware"
	"github.com/scriptreel/api/internal/model"
	"github.com/scriptreel/api/internal/repository"
	"github.com/scriptreel/api/internal/service"
	"github.com/scriptreel/api/internal/storage"
	ws "github.com/scriptreel/api/internal/websocket"
	"github.com/scriptreel/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Job store
	repo := repository.NewRedisJobRepository(redisClient)

	// Script authority client
	scriptClient := client.NewScriptClient(&cfg.Script)

	// Media capabilities: real microservice or in-process mocks
	var (
		tts         client.SpeechSynthesizer
		slides      client.SlideRenderer
		composer    client.VideoComposer
		mediaClient *client.MediaClient
	)
	if cfg.Media.Mock {
		log.Println("Info: Media mock mode enabled")
		tts = &client.MockSynthesizer{}
		slides = &client.MockSlideRenderer{}
		composer = &client.MockComposer{}
	} else {
		mediaClient = client.NewMediaClient(&cfg.Media)
		tts = mediaClient
		slides = mediaClient
		composer = mediaClient
	}

	// Storage provider
	store, err := newStorageProvider(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize services
	renderService := service.NewRenderJobService(repo, scriptClient, asynqClient, hub, cfg.Render.DefaultSceneDurationSec)

	// Initialize handlers
	renderHandler := handler.NewRenderHandler(renderService, validate)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"script":  scriptClient.IsConfigured(),
				"media":   mediaClient != nil && mediaClient.IsConfigured(),
				"storage": cfg.Storage.Mode,
				"auth":    cfg.Gateway.Enabled || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	render := api.Group("/render")
	render.Post("/jobs", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), renderHandler.Create)
	render.Post("/jobs/:jobId/start", renderHandler.Start)
	render.Post("/jobs/:jobId/retry", renderHandler.Retry)
	render.Post("/jobs/:jobId/cancel", renderHandler.Cancel)
	render.Get("/jobs/:jobId", renderHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID, catchupMessage(renderService, jobID))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, repo, tts, slides, composer, store, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newStorageProvider selects the upload backend by configured mode.
func newStorageProvider(cfg *config.StorageConfig) (storage.Provider, error) {
	switch cfg.Mode {
	case "remote":
		return storage.NewRemoteProvider(cfg), nil
	case "s3":
		return storage.NewS3Provider(cfg)
	default:
		return storage.NewLocalProvider(cfg), nil
	}
}

// catchupMessage builds the one-shot status snapshot sent to subscribers
// that connect after the job has already advanced.
func catchupMessage(svc *service.RenderJobService, jobID string) []byte {
	status, err := svc.GetStatus(context.Background(), jobID)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(model.WSProgressMessage{
		Type:      model.WSMessageTypeStatus,
		JobID:     status.JobID,
		Status:    status.Status,
		Step:      status.Step,
		Progress:  status.Progress,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil
	}
	return data
}

func startWorkerServer(
	cfg *config.Config,
	repo repository.JobRepository,
	tts client.SpeechSynthesizer,
	slides client.SlideRenderer,
	composer client.VideoComposer,
	store storage.Provider,
	hub *ws.Hub,
) {
	concurrency := cfg.Render.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"render": 10,
			},
		},
	)

	renderWorker := worker.NewRenderWorker(repo, tts, slides, composer, store, hub, worker.RenderWorkerOptions{
		WorkRoot:             cfg.Render.WorkDir,
		Voice:                cfg.Render.Voice,
		DefaultSceneDuration: cfg.Render.DefaultSceneDurationSec,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeRender, renderWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
