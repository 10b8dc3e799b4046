package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		filters  []string
		orderBy  []string
		limit    int
		pageSize int
		cursor   string
	)
	cmd := &cobra.Command{
		Use:   "query <kind>",
		Short: "List entities matching filters as JSON lines",
		Long: `Query prints matching entities, one JSON object per line. The cursor of
the last printed entity goes to stderr; pass it to --cursor to continue.

Example:
  strata query User --filter 'age>=30' --filter role=admin --order -age --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			q := m.All().OrderBy(orderBy...).Limit(limit).PageSize(pageSize)
			for _, expr := range filters {
				name, op, v, err := parseFilter(m, expr)
				if err != nil {
					return err
				}
				q = q.Filter(name, op, v)
			}

			it := q.Fetch(cursor)
			n := 0
			for it.Next(cmd.Context()) {
				if err := writeEntity(cmd.OutOrStdout(), it.Entity()); err != nil {
					return err
				}
				n++
			}
			if err := it.Err(); err != nil {
				return err
			}
			if n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "cursor: %s\n", it.Cursor())
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter expression such as age>=30 (repeatable)")
	cmd.Flags().StringSliceVarP(&orderBy, "order", "o", nil, "order by fields; prefix with - for descending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entities")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "entities requested per backend page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume after this cursor")
	return cmd
}
