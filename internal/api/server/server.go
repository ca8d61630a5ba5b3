// Package server is a local stand-in for the modeler API. It serves the same
// routes the client resolves and forwards them to an Ollama instance, so the
// terminal client can be run without a hosted deployment.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr      string
	Namespace string
	Version   string
	// APIKey, when set, is required on every request.
	APIKey string
	// Precontexts maps a precontext name to the system prompt it prepends.
	Precontexts map[string]string
}

type Server struct {
	cfg     Config
	handler *Handler
	log     *logger.Logger
}

func New(cfg Config, upstream Upstream) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:8080"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = client.DefaultNamespace
	}
	if cfg.Version == "" {
		cfg.Version = client.DefaultVersion
	}
	if cfg.Precontexts == nil {
		cfg.Precontexts = DefaultPrecontexts()
	}
	return &Server{
		cfg:     cfg,
		handler: NewHandler(upstream, cfg.Precontexts, cfg.APIKey),
		log:     logger.NewLogger("server"),
	}
}

// DefaultPrecontexts knows every precontext name the client offers, none of
// them with a prompt.
func DefaultPrecontexts() map[string]string {
	out := make(map[string]string, len(client.Precontexts))
	for _, name := range client.Precontexts {
		out[name] = ""
	}
	return out
}

// LoadPrecontexts reads a YAML mapping of precontext name to system prompt on
// top of the defaults.
func LoadPrecontexts(file string) (map[string]string, error) {
	out := DefaultPrecontexts()
	if file == "" {
		return out, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read precontexts: %w", err)
	}
	var prompts map[string]string
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse precontexts: %w", err)
	}
	for name, prompt := range prompts {
		out[name] = prompt
	}
	return out, nil
}

func (s *Server) route(route, action string) string {
	return path.Join("/", s.cfg.Namespace, s.cfg.Version, route, action)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.route(client.RouteOllama, client.ActionChat), s.handler.ChatHandler(false))
	mux.HandleFunc("POST "+s.route(client.RoutePrecontext, client.ActionChat), s.handler.ChatHandler(true))
	mux.HandleFunc("GET "+s.route(client.RouteOllama, client.ActionModels), s.handler.ModelHandler)

	root := http.NewServeMux()
	root.HandleFunc("GET /status", s.handler.StatusHandler)
	root.Handle("/", s.handler.Authorize(mux))
	return root
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Bool("auth", s.cfg.APIKey != "").Msg("server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}
