package server

import (
	"time"

	"github.com/yesser147/SafeRide/internal/accident"
	"github.com/yesser147/SafeRide/internal/auth"
	"github.com/yesser147/SafeRide/internal/config"
	"github.com/yesser147/SafeRide/internal/notify"
	"github.com/yesser147/SafeRide/internal/pipeline"
	"github.com/yesser147/SafeRide/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Events   *stream.Hub
	Pipeline *pipeline.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	notifier := notify.New(redisClient)
	accidents := accident.NewService(db, hub, notifier,
		time.Duration(cfg.ConfirmWindowMS)*time.Millisecond,
		time.Duration(cfg.RearmCooldownMS)*time.Millisecond)
	streams := pipeline.NewService(db, redisClient, hub, accidents, cfg)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Events:   hub,
		Pipeline: streams,
	}

	registerRoutes(s, accidents)
	return s
}

func registerRoutes(s *Server, accidents *accident.Service) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tokens := auth.NewService(s.Cfg.TokenSecret)
	streamMiddleware := auth.StreamTokenMiddleware(s.Cfg.TokenSecret)

	pipeline.RegisterRoutes(s.App.Group("/streams"), s.Pipeline, tokens, streamMiddleware)
	accident.RegisterRoutes(s.App.Group("/accidents"), accidents)
	stream.RegisterRoutes(s.App.Group("/events"), s.Events)
}
