package commands

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/searchy/internal/orm/backend/docbackend"
	"github.com/conduit-lang/searchy/internal/orm/backend/sqlbackend"
	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/search"
)

type compileOptions struct {
	entity  string
	file    string
	backend string
	dialect string
	scopes  []string
	explain bool
}

// NewCompileCommand creates the compile command
func NewCompileCommand(opts *rootOptions) *cobra.Command {
	co := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the query a search expression compiles to",
		Long: `Compile a search expression for an entity and print the resulting query
without connecting to a database.

The expression is read from --file (JSON, or YAML for .yaml/.yml files) or
from stdin. It is either a bare expression or a document with "filter" and
"scopes" keys.`,
		Example: `  # SQL for people living in Paris
  echo '{"field": "addresses.city", "value": "Paris"}' | searchy compile -e person

  # Aggregation pipeline for the document backend
  searchy compile -e person -f filter.yaml --backend document

  # Show the resolved joins too
  searchy compile -e person -f filter.json --explain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if co.backend == "" {
				co.backend = a.cfg.Search.Backend
			}
			if co.dialect == "" {
				co.dialect = a.cfg.Database.Driver
			}
			return a.fail(a.compile(cmd.InOrStdin(), cmd.OutOrStdout(), co))
		},
	}

	cmd.Flags().StringVarP(&co.entity, "entity", "e", "", "entity to search (required)")
	cmd.Flags().StringVarP(&co.file, "file", "f", "-", "expression file, - for stdin")
	cmd.Flags().StringVar(&co.backend, "backend", "", "sql or document (default search.backend)")
	cmd.Flags().StringVar(&co.dialect, "dialect", "", "SQL dialect: postgres or sqlite (default database.driver)")
	cmd.Flags().StringSliceVarP(&co.scopes, "scope", "s", nil, "named scope to apply, repeatable")
	cmd.Flags().BoolVar(&co.explain, "explain", false, "print the resolved joins before the query")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

// compile renders the plan of a filter document without executing it
func (a *app) compile(in io.Reader, out io.Writer, co *compileOptions) error {
	root, err := a.entity(co.entity)
	if err != nil {
		return err
	}
	doc, err := readFilter(co.file, in)
	if err != nil {
		return err
	}
	expr, err := a.expression(root, doc, co.scopes)
	if err != nil {
		return err
	}

	plan, err := a.service.Plan(root, expr)
	if err != nil {
		return err
	}
	if co.explain {
		fmt.Fprintf(out, "-- search %s\n", plan.ID)
		if expr != nil {
			fmt.Fprintf(out, "-- where %s\n", query.Format(expr))
		}
		for _, spec := range plan.Graph.Joins(nil) {
			fmt.Fprintf(out, "-- %s\n", spec)
		}
	}

	switch co.backend {
	case "sql":
		return a.compileSQL(out, plan, co.dialect)
	case "document":
		return a.compileDocument(out, plan)
	default:
		return fmt.Errorf("unknown backend %q: expected sql or document", co.backend)
	}
}

// predicate compiles the plan, or materializes fetch joins alone when the
// search has no expression
func (a *app) predicate(plan *search.Plan, b query.PredicateBuilder) (query.Predicate, error) {
	if plan.Expression == nil {
		return nil, plan.Graph.MaterializeFetches(a.service.Registry(), b.Root())
	}
	return a.service.Compile(plan, b)
}

func (a *app) compileSQL(out io.Writer, plan *search.Plan, dialectName string) error {
	dialect, err := sqlbackend.ParseDialect(dialectName)
	if err != nil {
		return err
	}
	b, err := sqlbackend.NewBuilder(a.service.Registry(), plan.Root,
		sqlbackend.WithDialect(dialect),
		sqlbackend.WithArrayIn(a.cfg.Search.ArrayIn),
		sqlbackend.WithClock(a.service.Clock()),
		sqlbackend.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	pred, err := a.predicate(plan, b)
	if err != nil {
		return err
	}

	stmt, args, err := b.ToSQL(pred)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, stmt)
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = formatArg(arg)
		}
		fmt.Fprintf(out, "-- args: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

func (a *app) compileDocument(out io.Writer, plan *search.Plan) error {
	b, err := docbackend.NewBuilder(a.service.Registry(), plan.Root,
		docbackend.WithClock(a.service.Clock()),
		docbackend.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	pred, err := a.predicate(plan, b)
	if err != nil {
		return err
	}

	pipeline, err := b.Pipeline(pred)
	if err != nil {
		return err
	}
	data, err := bson.MarshalExtJSONIndent(bson.D{
		{Key: "aggregate", Value: b.Collection()},
		{Key: "pipeline", Value: pipeline},
	}, false, false, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render pipeline: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// formatArg renders a bound argument for display
func formatArg(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatArg(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
