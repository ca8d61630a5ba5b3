package cmd

import (
	"context"
	"os"

	"github.com/bz888/modeler/internal/config"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/ui"
	"github.com/spf13/cobra"
)

var flags config.Flags

var rootCmd = &cobra.Command{
	Use:   "modeler",
	Short: "Chat with modeler-hosted LLMs from the terminal",
	Long: `modeler streams answers from a modeler API deployment into a terminal UI.

The API domain comes from --domain, MODELER_DOMAIN or the config file, and the
key from MODELER_API_KEY (optionally loaded from the configured env file).`,
	SilenceUsage: true,
	RunE:         runUI,
}

func init() {
	flags.Register(rootCmd.PersistentFlags())
	rootCmd.AddCommand(askCmd, modelsCmd, transcriptsCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	view := ui.New(a.sup, a.bus, cfg.Dev)
	if err := logger.InitLogger(logger.Config{
		Dev:     cfg.Dev,
		LogPath: cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: view.DebugConsole(),
	}); err != nil {
		return err
	}
	defer logger.Close()

	return view.Run(context.Background())
}
