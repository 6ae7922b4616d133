package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	discordclient "discordautomation/clients/discord"
	"discordautomation/config"
	"discordautomation/db"
	"discordautomation/handlers"
	"discordautomation/middleware"
	"discordautomation/services/dispatch"
	"discordautomation/services/metrics"
	"discordautomation/services/rules"
	"discordautomation/services/tasks"
	"discordautomation/services/txmanager"
	"discordautomation/usecases/automation"
	"discordautomation/usecases/moderation"
	"discordautomation/usecases/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Printf("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize error alert middleware
	alertMiddleware := middleware.NewErrorAlertMiddleware(middleware.AlertConfig{
		WebhookURL:  cfg.AlertWebhookURL,
		Environment: cfg.Environment,
		AppName:     "discordautomation",
		LogsURL:     cfg.ServerLogsURL,
	})

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Initialize repositories with shared connection
	rulesRepo := db.NewPostgresAutomationRulesRepository(dbConn, cfg.DatabaseSchema)
	tasksRepo := db.NewPostgresScheduledTasksRepository(dbConn, cfg.DatabaseSchema)
	metricsRepo := db.NewPostgresMetricsRepository(dbConn, cfg.DatabaseSchema)

	// Initialize transaction manager
	txManager := txmanager.NewTransactionManager(dbConn)

	rulesService := rules.NewAutomationRulesService(rulesRepo)
	tasksService := tasks.NewScheduledTasksService(tasksRepo, txManager)
	metricsService := metrics.NewMetricsService(metricsRepo)

	if !cfg.DiscordConfig.IsConfigured() {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	session, err := discordgo.New("Bot " + cfg.DiscordConfig.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	discordClient := discordclient.NewDiscordClient(session)

	// One executor instance is shared by every producer so rate limiting
	// and idempotency hold across the whole process
	actionExecutor := dispatch.NewActionExecutor(discordClient, cfg.DispatchConfig)

	automationUseCase := automation.NewAutomationUseCase(rulesService, actionExecutor)
	schedulerUseCase := scheduler.NewSchedulerUseCase(tasksService, actionExecutor, cfg.SchedulerConfig)
	moderationUseCase := moderation.NewModerationUseCase(
		discordClient,
		actionExecutor,
		metricsService,
		cfg.AutoModConfig,
	)

	discordEventsHandler := handlers.NewDiscordEventsHandler(session, automationUseCase, alertMiddleware)
	adminHandler := handlers.NewAdminHTTPHandler(
		rulesService,
		tasksService,
		metricsService,
		moderationUseCase,
		cfg.AutoModConfig,
	)

	// Release claims orphaned by a previous crash before the first tick
	if err := schedulerUseCase.RecoverOnStartup(context.Background()); err != nil {
		return err
	}

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	go func() {
		_ = alertMiddleware.WrapBackgroundTask("SchedulerLoop", func() error {
			schedulerUseCase.Run(schedulerCtx)
			return nil
		})()
	}()

	if err := discordEventsHandler.StartBot(); err != nil {
		return err
	}
	defer discordEventsHandler.StopBot()

	router := mux.NewRouter()
	adminHandler.SetupEndpoints(router)

	// Setup CORS middleware
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Setup and handle graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           alertMiddleware.HTTPMiddleware(c.Handler(router)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return handleGracefulShutdown(server)
}

func handleGracefulShutdown(server *http.Server) error {
	// Channel to listen for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Listening on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-stop
	log.Printf("🛑 Shutdown signal received, cleaning up...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
		return err
	}

	log.Printf("✅ Server stopped gracefully")
	return nil
}
