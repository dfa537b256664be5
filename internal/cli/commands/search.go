package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/searchy/internal/cli/ui"
	"github.com/conduit-lang/searchy/internal/orm/search"
)

type searchOptions struct {
	entity string
	file   string
	scopes []string
	json   bool
}

// NewSearchCommand creates the search command
func NewSearchCommand(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a search expression against the configured backend",
		Example: `  # Employed people named Doe, from a YAML file
  searchy search -e person -f doe.yaml --scope employed

  # Every vehicle, as JSON
  echo '{}' | searchy search -e vehicle --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			backend, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			return a.fail(a.search(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), backend, so))
		},
	}

	cmd.Flags().StringVarP(&so.entity, "entity", "e", "", "entity to search (required)")
	cmd.Flags().StringVarP(&so.file, "file", "f", "-", "expression file, - for stdin")
	cmd.Flags().StringSliceVarP(&so.scopes, "scope", "s", nil, "named scope to apply, repeatable")
	cmd.Flags().BoolVar(&so.json, "json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func (a *app) search(ctx context.Context, in io.Reader, out io.Writer, backend search.Backend, so *searchOptions) error {
	root, err := a.entity(so.entity)
	if err != nil {
		return err
	}
	doc, err := readFilter(so.file, in)
	if err != nil {
		return err
	}
	expr, err := a.expression(root, doc, so.scopes)
	if err != nil {
		return err
	}

	rows, err := a.service.Find(ctx, root, expr, backend)
	if err != nil {
		return err
	}

	if so.json {
		if rows == nil {
			rows = []map[string]any{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) > 0 {
		ui.ResultTable(out, rows, a.noColor).Render()
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, ui.Success(fmt.Sprintf("%d %s found", len(rows), root.Name()), a.noColor))
	return nil
}
