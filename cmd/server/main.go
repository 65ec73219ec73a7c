package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/ytakahashi/session-todo-api/internal/config"
	"github.com/ytakahashi/session-todo-api/internal/handlers"
	"github.com/ytakahashi/session-todo-api/internal/logging"
	"github.com/ytakahashi/session-todo-api/internal/services"
	"google.golang.org/api/option"
)

type store interface {
	services.TodoStore
	services.SessionStore
}

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration", "err", err)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if !dotenv {
		logger.Info("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "driver", cfg.StoreDriver, "err", err)
	}
	defer closeStore()
	logger.Info("Store ready", "driver", cfg.StoreDriver)

	todoService := services.NewTodoService(st, logger)
	sessions := handlers.NewSessionManager(st, handlers.SessionOptions{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(logging.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc:  func(string) (bool, error) { return true, nil },
		AllowCredentials: true,
	}))

	handlers.NewTodoHandler(todoService).Register(e.Group("/api/todos", sessions.Middleware()))

	if cfg.Line.Enabled() {
		bot, err := messaging_api.NewMessagingApiAPI(cfg.Line.ChannelToken)
		if err != nil {
			logger.Fatal("Failed to create LINE bot client", "err", err)
		}
		webhookHandler := handlers.NewWebhookHandler(bot, todoService, cfg.Line.ChannelSecret, logger)
		e.POST("/webhook", webhookHandler.HandleWebhook)
		logger.Info("LINE webhook enabled")
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverFirestore:
		var opts []option.ClientOption
		if cfg.GoogleCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
		}
		fs, err := services.NewFirestoreStore(ctx, cfg.GoogleCloudProject, opts...)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil

	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ms, err := services.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if err := ms.EnsureIndexes(connectCtx); err != nil {
			_ = ms.Close(context.Background())
			return nil, nil, err
		}
		return ms, func() { _ = ms.Close(context.Background()) }, nil

	default:
		return services.NewMemoryStore(), func() {}, nil
	}
}
