package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"pulse-backend/internal/cache"
	"pulse-backend/internal/db"
	"pulse-backend/internal/handlers"
	"pulse-backend/internal/models"
	"pulse-backend/internal/notify"
	"pulse-backend/internal/presence"
	"pulse-backend/internal/queue"
	"pulse-backend/internal/realtime"
	"pulse-backend/internal/repo"
	"pulse-backend/internal/services"
	"pulse-backend/internal/utils"
)

// storeCounters adapts the message repositories to the notifier's unread
// derivation interface.
type storeCounters struct {
	msgs *repo.MessageRepo
	dms  *repo.DirectMessageRepo
}

func (s storeCounters) CountChannel(ctx context.Context, channelID string, viewerID int, since time.Time) (int, error) {
	return s.msgs.CountUnread(ctx, channelID, viewerID, since)
}

func (s storeCounters) CountConversation(ctx context.Context, conversationID string, viewerID int, since time.Time) (int, error) {
	return s.dms.CountUnread(ctx, conversationID, viewerID, since)
}

func Run() {
	// Load Env
	if err := utils.LoadEnv(); err != nil {
		log.Println("Warning: .env file not found")
	}

	zlog, err := zap.NewProduction()
	if utils.GetEnv("APP_ENV", "development") == "development" {
		zlog, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Init DB
	connString := utils.GetEnv("DATABASE_URL", "")
	if connString == "" {
		// Fallback to individual vars
		connString = "postgres://" + utils.GetEnv("POSTGRES_USER", "postgres") + ":" +
			utils.GetEnv("POSTGRES_PASSWORD", "postgres") + "@" +
			utils.GetEnv("POSTGRES_HOST", "localhost") + ":" +
			utils.GetEnv("POSTGRES_PORT", "5432") + "/" +
			utils.GetEnv("POSTGRES_DB", "pulsedb") + "?sslmode=disable"
	}

	pool, err := db.Connect(context.Background(), connString)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Redis backs presence durability and the push queue. The realtime core
	// keeps working without it, just with neither of those.
	var presenceStore presence.Store
	var enqueuer queue.Enqueuer
	var pushServer *queue.Server
	redisURL := utils.GetEnv("REDIS_URL", "redis://localhost:6379/0")
	if rdb, err := cache.Connect(redisURL); err != nil {
		zlog.Warn("redis unavailable, presence records and push queue disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		presenceStore = presence.NewRedisStore(rdb)

		client, err := queue.NewClient(redisURL)
		if err != nil {
			zlog.Warn("push queue client unavailable", zap.Error(err))
		} else {
			defer client.Close()
			enqueuer = client
		}
		if pushServer, err = queue.NewServer(redisURL, zlog); err != nil {
			zlog.Warn("push worker unavailable", zap.Error(err))
		}
	}

	// Repositories
	userRepo := repo.NewUserRepo(pool)
	messageRepo := repo.NewMessageRepo(pool)
	directRepo := repo.NewDirectMessageRepo(pool)
	conversationRepo := repo.NewConversationRepo(pool)
	channelRepo := repo.NewChannelRepo(pool)
	socialRepo := repo.NewSocialRepo(pool)
	markerRepo := repo.NewReadMarkerRepo(pool)

	// Realtime core
	rooms := realtime.NewRooms(zlog)
	registry := realtime.NewRegistry(rooms, zlog)
	tracker := presence.NewTracker(rooms, presenceStore, registry,
		time.Duration(utils.GetEnvInt("PRESENCE_DEBOUNCE_SECONDS", 10))*time.Second, zlog)
	notifier := notify.New(rooms, registry, markerRepo,
		storeCounters{msgs: messageRepo, dms: directRepo}, enqueuer, zlog)
	relay := services.NewRelay(messageRepo, directRepo, conversationRepo,
		channelRepo, socialRepo, userRepo, rooms, notifier, zlog)

	// Services
	userService := services.NewUserService(userRepo)

	// Handlers
	socketHandler := handlers.NewSocketHandler(registry, rooms, relay, tracker, zlog)
	restHandler := handlers.NewRestHandler(relay, tracker, notifier, userService)

	// Push worker: the boundary to the OS-push sink. Everything past this
	// handler is an external collaborator.
	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if pushServer != nil {
		pushServer.Register(queue.TypePushNotification, func(ctx context.Context, payload []byte) error {
			var p notify.PushPayload
			if err := utils.SafeJSONParse(payload, &p); err != nil {
				return err
			}
			zlog.Info("push handed to sink",
				zap.Int("user_id", p.UserID), zap.String("room", p.RoomID))
			return nil
		})
		go func() {
			if err := pushServer.Run(rootCtx); err != nil {
				zlog.Error("push worker stopped", zap.Error(err))
			}
		}()
	}

	// Fiber App
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Ensure upload dir exists and serve uploaded files
	uploadDir := utils.GetEnv("UPLOAD_DIR", "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		log.Printf("Warning: failed to create upload dir: %v", err)
	}
	app.Static("/uploads", uploadDir)

	// Routes
	api := app.Group("/api")

	// Public Routes
	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrUserExists) {
				return c.Status(400).JSON(fiber.Map{"error": "username already exists"})
			}
			if errors.Is(err, services.ErrValidation) {
				return c.Status(400).JSON(fiber.Map{"error": "username and password required"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(user)
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	// Refresh token endpoint
	api.Post("/refresh", func(c *fiber.Ctx) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if body.RefreshToken == "" {
			return c.Status(400).JSON(fiber.Map{"error": "refresh_token required"})
		}

		claims, err := services.ValidateRefreshToken(body.RefreshToken)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid refresh token"})
		}

		userIDf, ok := claims["user_id"].(float64)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token claims"})
		}
		username, ok := claims["username"].(string)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token claims"})
		}

		userID := int(userIDf)

		access, err := services.GenerateJWT(userID, username)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to generate access token"})
		}
		refresh, err := services.GenerateRefreshToken(userID, username)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to generate refresh token"})
		}

		return c.JSON(fiber.Map{
			"access_token":  access,
			"refresh_token": refresh,
		})
	})

	// Protected Routes
	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware)

	// Conversations
	protected.Post("/conversations", restHandler.PostConversation)
	protected.Get("/conversations", restHandler.GetConversations)

	// REST fallbacks for the realtime core
	protected.Put("/users/status", restHandler.PutStatus)
	protected.Put("/dm/messages/:conversationId/read", restHandler.PutConversationRead)
	protected.Post("/messages/:id/reactions", restHandler.PostMessageReaction)
	protected.Post("/dm/messages/:id/reactions", restHandler.PostDMReaction)

	// Social-event hooks
	protected.Post("/friends/requests", restHandler.PostFriendRequest)
	protected.Post("/friends/accept", restHandler.PostFriendAccept)

	// Attachments referenced by message:send / dm:send
	protected.Post("/attachments", handlers.UploadAttachmentHandler())

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	// Note: Middleware order matters. AuthMiddleware checks token.
	// WSUpgradeMiddleware checks if it's a WS request.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", socketHandler.Handler())

	// Start Server
	port := utils.GetEnv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	log.Println("Gracefully shutting down...")
	stopWorkers()
	_ = app.Shutdown()
	log.Println("Server shutdown complete")
}
