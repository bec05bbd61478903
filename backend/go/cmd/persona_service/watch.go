package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"PersonaGen/backend/go/internal/database/kafka"
	"PersonaGen/backend/go/internal/models"

	"github.com/spf13/cobra"
)

var watchGroup string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream turn events from Kafka as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, appLogger, err := loadConfig()
		if err != nil {
			return err
		}
		consumer, err := kafka.NewTurnConsumer(&cfg.Databases.Kafka, watchGroup, appLogger.WithField("component", "watch"))
		if err != nil {
			return err
		}
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(os.Stdout)
		return consumer.Run(ctx, func(_ context.Context, event *models.TurnEvent) error {
			return enc.Encode(event)
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchGroup, "group", "persona_watch", "Kafka consumer group")
	rootCmd.AddCommand(watchCmd)
}
