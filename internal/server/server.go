package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chirality-ai/valley/internal/queue"
	mid "github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/internal/storage"
	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the HTTP server around app without starting it.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: util.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
	}))

	RegisterRoutes(e)
	return e
}

// Init wires the server from the environment and serves until SIGINT or
// SIGTERM.
func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, _, err := storage.OpenGraphStore(ctx)
	if err != nil {
		logger.Fatal("Failed to open graph store", "err", err)
	}
	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{Gateway: gateway})
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}
	defer graphClient.Close()

	if err := graphClient.EnsurePipeline(ctx, graphClient.Stations()); err != nil {
		logger.Fatal("Failed to bootstrap station pipeline", "err", err)
	}

	app := &mid.App{
		Graph: graphClient,
		S3:    storage.NewS3Client(ctx),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k
	}

	app.MasterAPIKey = util.GetEnv("MASTER_API_KEY")
	parsedMasterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 32)
	app.MasterUserID = int32(parsedMasterUserID)
	app.MasterUserRole = util.GetEnv("MASTER_USER_ROLE")

	if !app.AuthEnabled() {
		logger.Warn("Authentication disabled, every caller is treated as admin")
	}

	if queue.Enabled() {
		que := queue.Init()
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()

		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("Failed to declare queues", "err", err)
		}
		app.Queue = ch
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
