package main

import (
	"fmt"
	"os"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "persona_service",
	Short: "Personality memory store and conversation service",
	Long: `Stores personality profiles built from onboarding answers and runs conversations
with a persona that speaks in that voice and learns new facts as it goes.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "persona_service: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file")
}

// loadConfig 加载配置并初始化全局日志。
func loadConfig() (*config.AppConfig, *logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	return cfg, logger.New(cfg.App.Name, "", ""), nil
}
