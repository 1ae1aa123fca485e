package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.uncharted.software/WM/lora-campaign/config"
	"go.uber.org/zap"
)

const envFile = "lora.env"

var (
	// populated at compile time based on data injected by the makefile
	version   = "unset"
	timestamp = "unset"

	verbose bool
	envPath string

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lora",
	Short: "LoRA evaluation campaigns and training dataset preparation",
	Long: `lora drives evaluation campaigns against a ComfyUI render server, prepares
captioned training datasets and indexes the rendered outputs.

Campaigns can be run directly from the command line or queued on the campaign
service started with "lora serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.Load(envPath)
		if err != nil {
			return err
		}
		logger, err = config.NewLogger(env.Mode, verbose)
		if err != nil {
			return err
		}
		cfg = config.Config{
			Logger:      logger.Sugar(),
			Environment: env,
		}

		cfg.Logger.Debugf("Version: %s Timestamp: %s", version, timestamp)
		cfg.Logger.Debug(env)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", envFile, "Environment file read when LORA_MODE is not set")

	rootCmd.AddCommand(newCampaignCmd(), newCaptionCmd(), newGalleryCmd(), newServeCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
