package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bz888/modeler/internal/api/server"
	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/logger"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveOllama      string
	servePrecontexts string
	serveNoAuth      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local modeler API backed by Ollama",
	Long: `Serve the modeler chat and model routes locally, forwarding them to an
Ollama instance. Point the client at it with --domain http://localhost:8080.

Requests must carry the key from MODELER_API_KEY unless --no-auth is given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveOllama, "ollama", server.DefaultOllamaHost, "Ollama base URL")
	serveCmd.Flags().StringVar(&servePrecontexts, "precontexts", "", "YAML file mapping precontext names to system prompts")
	serveCmd.Flags().BoolVar(&serveNoAuth, "no-auth", false, "Accept requests without an API key")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(logger.Config{
		Dev:     true,
		LogPath: cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: cmd.ErrOrStderr(),
	}); err != nil {
		return err
	}
	defer logger.Close()

	var apiKey string
	if !serveNoAuth {
		cred, err := credentials.Env{EnvFile: cfg.EnvFile, EnvVar: cfg.Auth.EnvVar}.Credential(cmd.Context())
		if err != nil {
			return apperr.Configuration("an API key is required; set it or pass --no-auth", err)
		}
		apiKey = cred.Key
	}

	precontexts, err := server.LoadPrecontexts(servePrecontexts)
	if err != nil {
		return err
	}
	upstream, err := server.NewOllamaClient(serveOllama)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Addr:        serveAddr,
		Namespace:   cfg.Endpoint.Namespace,
		Version:     cfg.Endpoint.Version,
		APIKey:      apiKey,
		Precontexts: precontexts,
	}, upstream)
	return srv.Run(ctx)
}
