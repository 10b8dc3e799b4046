package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/strata/internal/config"
	"github.com/jacentio/strata/store"
	"github.com/jacentio/strata/store/dynamo"
)

func newKindsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List declared kinds and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, kind := range a.registry.Kinds() {
				m, _ := a.registry.Lookup(kind)
				fmt.Fprintf(w, "%s (id: %v)\n", kind, m.UniqueKeyFields())
				for _, f := range m.Fields() {
					fmt.Fprintf(w, "  %-20s %s%s\n", f.Name(), f.Type().TypeName(), fieldFlags(f))
				}
			}
			return nil
		},
	}
}

func fieldFlags(f *store.Field) string {
	var s string
	if f.UniqueKey() {
		s += " unique-key"
	}
	if f.Required() {
		s += " required"
	}
	if !f.Nullable() {
		s += " not-null"
	}
	if !f.Indexed() {
		s += " unindexed"
	}
	return s
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <kind>",
		Short: "Print the number of entities of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			n, err := a.client.Count(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newFlushCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete all data (test mode only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("%w: flush deletes every entity; pass --yes to confirm", store.ErrConfiguration)
			}
			if err := a.client.Flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "flushed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}

func newInitTableCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "init-table",
		Short: "Create the DynamoDB table and its indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Backend != config.BackendDynamo {
				return fmt.Errorf("%w: init-table requires the %s backend", store.ErrConfiguration, config.BackendDynamo)
			}
			api, err := a.cfg.NewDynamoAPI(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.cfg.DynamoClientConfig()
			if err := dynamo.CreateTable(cmd.Context(), api, cfg, a.registry, wait); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s ready\n", cfg.Table)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the table to become active (0 to skip)")
	return cmd
}
