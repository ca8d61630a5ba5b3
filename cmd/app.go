package cmd

import (
	"io"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/config"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/event"
	"github.com/bz888/modeler/internal/storage"
	"github.com/bz888/modeler/internal/supervisor"
	"github.com/bz888/modeler/internal/transport"
	"github.com/spf13/cobra"
)

// app is everything a command needs to talk to the API and the store.
type app struct {
	cfg    *config.Config
	client *client.Client
	creds  credentials.Provider
	store  storage.Store
	bus    *event.Bus
	sup    *supervisor.Supervisor
}

// loadConfig layers the config file, the environment and explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.Path())
	if err != nil {
		return nil, err
	}
	flags.Apply(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp wires the stack. withEndpoint=false skips the API client for
// commands that only touch local storage.
func newApp(cfg *config.Config, withEndpoint bool) (*app, error) {
	a := &app{
		cfg: cfg,
		creds: credentials.Env{
			EnvFile: cfg.EnvFile,
			EnvVar:  cfg.Auth.EnvVar,
			Scheme:  cfg.Auth.Scheme,
		},
		bus: event.NewBus(),
	}

	if withEndpoint {
		if err := cfg.ValidateEndpoint(); err != nil {
			a.bus.Close()
			return nil, err
		}
		c, err := client.NewClient(client.ClientConfig{
			Base:      cfg.Endpoint.Domain,
			Namespace: cfg.Endpoint.Namespace,
			Version:   cfg.Endpoint.Version,
		})
		if err != nil {
			a.bus.Close()
			return nil, err
		}
		a.client = c
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		a.bus.Close()
		return nil, err
	}
	a.store = store

	var tr transport.Transport
	if withEndpoint {
		tr = transport.NewHTTP(transport.Config{
			ConnectTimeout:        cfg.ConnectTimeout(),
			ResponseHeaderTimeout: cfg.HeaderTimeout(),
			MaxRetries:            cfg.Transport.MaxRetries,
		})
	}
	a.sup = supervisor.New(supervisor.Options{
		Client:      a.client,
		Transport:   tr,
		Credentials: a.creds,
		Store:       a.store,
		Bus:         a.bus,
		Model:       cfg.Model,
		Precontext:  cfg.Precontext,
	})
	return a, nil
}

func (a *app) Close() {
	a.sup.Close()
	if c, ok := a.store.(io.Closer); ok {
		c.Close()
	}
	a.bus.Close()
}
