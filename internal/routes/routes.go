package routes

import (
	"errors"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saeid-a/CoachCareBack/internal/config"
	"github.com/saeid-a/CoachCareBack/internal/handlers"
	"github.com/saeid-a/CoachCareBack/internal/middleware"
	"github.com/saeid-a/CoachCareBack/internal/repository"
	"github.com/saeid-a/CoachCareBack/internal/services"
	chatws "github.com/saeid-a/CoachCareBack/internal/websocket"
	"go.uber.org/zap"
)

// Deps are the process-level resources routes are built on. Storage is nil
// when media uploads are disabled.
type Deps struct {
	DB      *pgxpool.Pool
	Logger  *zap.Logger
	Storage services.StorageService
	Hub     *chatws.Hub
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Deps) error {
	if deps.DB == nil {
		return errors.New("database pool is required")
	}
	if deps.Hub == nil {
		return errors.New("chat hub is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := services.NewPostgresStore(deps.DB)
	access := services.NewAccessService(store)
	calendarService := services.NewCalendarService(store, access, cfg.Location())
	chatService := services.NewChatService(store, access, deps.Storage, logger.Named("chat"))
	assignmentService := services.NewAssignmentService(store, access)
	clientService := services.NewClientService(store, access)

	authHandler := handlers.NewAuthHandler(repository.NewUserRepository(deps.DB), cfg.JWTSecret, cfg.JWTTTL)
	calendarHandler := handlers.NewCalendarHandler(calendarService)
	chatHandler := handlers.NewChatHandler(chatService, deps.Hub, cfg.JWTSecret)
	adminHandler := handlers.NewAdminHandler(assignmentService, deps.Hub)
	clientHandler := handlers.NewClientHandler(clientService)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	auth := api.Group("/auth", limiter.New(limiter.Config{
		Max:        cfg.AuthRateLimit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	calendar := authProtected.Group("/calendar")
	calendar.Post("/calls", calendarHandler.CreateCall)
	calendar.Get("/today", calendarHandler.Today)
	calendar.Get("/events", calendarHandler.ListByDate)
	calendar.Get("/events/range", calendarHandler.ListByRange)
	calendar.Get("/events/:id", calendarHandler.GetEvent)
	calendar.Patch("/events/:id", calendarHandler.UpdateEvent)
	calendar.Post("/events/:id/cancel", calendarHandler.CancelEvent)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Get("/me", chatHandler.MyConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkRead)
	conversations.Patch("/:id/flags", chatHandler.SetFlags)
	conversations.Post("/:id/media", chatHandler.CreateMediaUpload)

	messages := authProtected.Group("/messages")
	messages.Patch("/:id", chatHandler.EditMessage)
	messages.Delete("/:id", chatHandler.DeleteMessage)

	clients := authProtected.Group("/clients")
	clients.Get("", clientHandler.ListClients)
	clients.Get("/:id", clientHandler.GetClient)

	admin := authProtected.Group("/admin")
	admin.Post("/clients/:id/chat-doctor", adminHandler.AssignChatDoctor)
	admin.Post("/clients/:id/coach", adminHandler.AssignCoach)
	admin.Patch("/users/:id/role", adminHandler.SetRole)
	admin.Patch("/users/:id/subscription", adminHandler.SetSubscription)

	// Outside /v1: browser upgrades carry the token as ?token=.
	api.Use("/ws", chatHandler.WebSocketAuth)
	api.Get("/ws", websocket.New(chatHandler.HandleWebSocket))

	return nil
}
