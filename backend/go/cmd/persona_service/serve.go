package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/database/kafka"
	"PersonaGen/backend/go/internal/events"
	"PersonaGen/backend/go/internal/llm"
	"PersonaGen/backend/go/internal/memory/extractor"
	"PersonaGen/backend/go/internal/memory/merger"
	"PersonaGen/backend/go/internal/memory/store"
	"PersonaGen/backend/go/internal/persona_service/api"
	"PersonaGen/backend/go/internal/persona_service/service"
	"PersonaGen/backend/go/pkg/http"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, appLogger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, appLogger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) error {
	appLogger.Info("Logger initialized")

	// Store
	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	defer st.Close()
	appLogger.WithField("driver", cfg.Storage.Driver).Info("Store opened")

	// Completion service
	model, err := llm.NewLLM(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	if closer, ok := model.(llm.Closer); ok {
		defer closer.Close()
	}
	completer := llm.NewCompleter(model, cfg.LLM, appLogger.WithField("component", "llm"))
	appLogger.WithField("provider", cfg.LLM.Provider).Info("LLM client created")

	// Turn events
	publisher, err := newPublisher(cfg, appLogger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Initialize dependencies (Store -> Service -> Handler)
	svc := service.NewService(
		st,
		extractor.New(completer, appLogger.WithField("component", "extractor")),
		merger.New(st, merger.WithProtectedAnswers(cfg.Conversation.ProtectOnboardingKeys)),
		completer,
		publisher,
		cfg.Conversation,
		appLogger.WithField("component", "service"),
	)
	apiHandler := api.NewHandler(svc, appLogger.WithField("component", "api"))
	appLogger.Info("Dependencies injected")

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(apiHandler, cfg.Middleware, appLogger.WithField("component", "http"))

	srv := http.NewServer(router,
		http.WithAddress(cfg.Server.Address),
		http.WithShutdownTimeout(cfg.Server.ShutdownTimeoutDuration()),
		http.WithLogger(appLogger),
	)
	return srv.Run(ctx)
}

// newPublisher 在配置了 Kafka 时返回异步的对话事件发布器，否则返回 Noop。
func newPublisher(cfg *config.AppConfig, appLogger *logger.Logger) (events.Publisher, error) {
	if len(cfg.Databases.Kafka.Brokers) == 0 {
		return events.Noop{}, nil
	}
	client, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}
	appLogger.WithField("topic", cfg.Databases.Kafka.TurnTopic).Info("Publishing turn events to Kafka")
	return events.NewAsyncPublisher(kafka.NewTurnPublisher(client), 256, appLogger.WithField("component", "events")), nil
}
