package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/alerting"
	"github.com/stanstork/waterwatch-api/internal/config"
	"github.com/stanstork/waterwatch-api/internal/database"
	"github.com/stanstork/waterwatch-api/internal/handlers"
	"github.com/stanstork/waterwatch-api/internal/healthcard"
	"github.com/stanstork/waterwatch-api/internal/middleware"
	"github.com/stanstork/waterwatch-api/internal/migration"
	"github.com/stanstork/waterwatch-api/internal/notification"
	"github.com/stanstork/waterwatch-api/internal/observability"
	"github.com/stanstork/waterwatch-api/internal/observation"
	"github.com/stanstork/waterwatch-api/internal/qrcode"
	"github.com/stanstork/waterwatch-api/internal/repository"
	"github.com/stanstork/waterwatch-api/internal/routes"
	"github.com/stanstork/waterwatch-api/internal/scheduler"
)

type application struct {
	config  *config.Config
	db      *sql.DB
	logger  zerolog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	cards   *healthcard.Aggregator
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database connection.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.Database.ConnectRetries, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()

	// Run database migrations.
	if err := migration.RunMigrations(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app := &application{
		config:  cfg,
		db:      db,
		logger:  logger,
		metrics: observability.NewMetrics(),
		clock:   clockwork.NewRealClock(),
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	sweep, err := scheduler.NewSweep(cfg.HealthCards.RefreshSchedule, app.cards, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule health card refresh")
	}
	if sweep != nil {
		sweep.Start()
	}

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, sweep, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	userRepo := repository.NewUserRepository(app.db)
	waterTestRepo := repository.NewWaterTestRepository(app.db)
	alertRepo := repository.NewAlertRepository(app.db)
	cardRepo := repository.NewHealthCardRepository(app.db)

	gateway, err := app.newGateway(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure notification gateway")
	}
	formatter, err := notification.NewFormatter(app.config.Notifications.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load notification timezone")
	}

	// Services
	dispatcher := alerting.NewDispatcher(alertRepo, userRepo, gateway, formatter, app.metrics, logger)
	app.cards = healthcard.NewAggregator(
		waterTestRepo,
		cardRepo,
		qrcode.NewPNGGenerator(app.config.PublicBaseURL),
		app.clock,
		app.config.HealthCards.HistoryLimit,
		app.metrics,
		logger,
	)
	observations := observation.NewService(waterTestRepo, dispatcher, app.cards, app.metrics, logger)

	return routes.NewRouter(routes.Handlers{
		Auth:        handlers.NewAuthHandler(userRepo, app.config.JWTSecret, logger),
		WaterTests:  handlers.NewWaterTestHandler(observations, logger),
		HealthCards: handlers.NewHealthCardHandler(app.cards, logger),
		Alerts:      handlers.NewAlertHandler(alertRepo, app.clock, logger),
	})
}

func (app *application) newGateway(logger zerolog.Logger) (notification.Gateway, error) {
	if app.config.Notifications.Provider == "twilio" {
		return notification.NewTwilioGateway(app.config.Notifications, logger)
	}
	logger.Warn().Msg("SMS provider is 'log'; text messages will only be logged")
	return notification.NewLogGateway(logger), nil
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, sweep *scheduler.Sweep, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if sweep != nil {
		logger.Info().Msg("Stopping health card sweep...")
		sweep.Stop()
		logger.Info().Msg("Health card sweep stopped.")
	}
}
