package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/strata/store"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print an entity as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			e, err := m.MustGetByID(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return writeEntity(cmd.OutOrStdout(), e)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <kind> [field=value ...]",
		Short: "Create an entity",
		Long: `Create constructs an entity from field=value pairs and stores it.
Values are parsed according to the field type; "null" leaves a field empty.

Example:
  strata create User email=ada@example.com age=36`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(m, args[1:])
			if err != nil {
				return err
			}
			e, err := m.Create(cmd.Context(), values)
			if err != nil {
				return err
			}
			return writeEntity(cmd.OutOrStdout(), e)
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <kind> <id> field=value [field=value ...]",
		Short: "Update fields of an existing entity",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(m, args[2:])
			if err != nil {
				return err
			}
			e, err := m.MustGetByID(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			for name, v := range values {
				if err := e.Set(name, v); err != nil {
					return err
				}
			}
			updated, err := e.Update(cmd.Context())
			if err != nil {
				return err
			}
			if updated == nil {
				return fmt.Errorf("%w: %s was deleted concurrently", store.ErrNotFound, e.Key().Ref())
			}
			return writeEntity(cmd.OutOrStdout(), updated)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id> [id ...]",
		Short: "Delete entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range args[1:] {
				if err := m.DeleteByID(cmd.Context(), id); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", m.Key(id).Ref())
			}
			return errors.Join(errs...)
		},
	}
}
