package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jacentio/strata/internal/config"
	"github.com/jacentio/strata/observability"
	"github.com/jacentio/strata/store"
)

// app holds the state every subcommand shares. It is populated by the
// root command's PersistentPreRunE.
type app struct {
	configFile string
	backend    string

	cfg      *config.Config
	logger   *slog.Logger
	client   *observability.Client
	registry *store.Registry
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "strata",
		Short: "Inspect and maintain a strata store",
		Long: `strata reads entities declared in a schema file from the configured
backend (DynamoDB, Redis or memory).

Configuration is read from strata.yaml in the working directory or the
file given with --config. STRATA_* environment variables override it.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./strata.yaml)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "override the configured backend")

	root.AddCommand(
		newKindsCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newQueryCmd(a),
		newCountCmd(a),
		newFlushCmd(a),
		newInitTableCmd(a),
	)
	return root
}

// setup loads configuration and opens the backend. An app that already
// has a registry is left as is.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.registry != nil {
		return nil
	}
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	a.cfg = cfg
	a.logger = cfg.Logger("cli")

	a.client, err = cfg.Open(cmd.Context(), a.logger)
	if err != nil {
		return err
	}
	a.registry, err = cfg.Registry(a.client)
	return err
}

// model returns the registered model of kind.
func (a *app) model(kind string) (*store.Model, error) {
	m, ok := a.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q (known: %v)", store.ErrModelReference, kind, a.registry.Kinds())
	}
	return m, nil
}
