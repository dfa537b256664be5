package commands

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/searchy/internal/cli/ui"
	"github.com/conduit-lang/searchy/internal/orm/backend/docbackend"
	"github.com/conduit-lang/searchy/internal/orm/backend/sqlbackend"
)

// NewDBCommand creates the db command
func NewDBCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the configured search backend",
	}
	cmd.AddCommand(newDBCheckCommand(opts))
	return cmd
}

func newDBCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that every entity has a table or collection",
		Long: `Connect to the configured backend and check that the table (sql) or
collection (document) of every registered entity exists.

PostgreSQL databases are checked over a direct pgx connection, SQLite
databases through database/sql.`,
		Example: `  # Check the database from searchy.yaml
  searchy db check

  # Check a document store
  SEARCHY_SEARCH_BACKEND=document searchy db check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			exists, err := a.storeChecker(cmd.Context())
			if err != nil {
				return err
			}
			return a.checkStore(cmd, exists)
		},
	}
}

// existsFunc reports whether the store holds data for an entity, and
// under which name
type existsFunc func(ctx context.Context, entity reflect.Type) (string, bool, error)

// checkStore reports which registered entities have a table or collection
func (a *app) checkStore(cmd *cobra.Command, exists existsFunc) error {
	table := ui.NewTable(cmd.OutOrStdout(), a.noColor, "Entity", "Store", "Status")
	missing := 0
	for _, t := range a.service.Registry().Entities() {
		name, ok, err := exists(cmd.Context(), t)
		if err != nil {
			return err
		}
		status := "ok"
		if !ok {
			status = "missing"
			missing++
		}
		table.AddRow(t.Name(), name, status)
	}
	table.Render()

	if missing > 0 {
		return fmt.Errorf("%d of %d entities have no %s", missing, table.Len(), a.storeNoun())
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success("all entities are searchable", a.noColor))
	return nil
}

func (a *app) storeNoun() string {
	if a.cfg.Search.Backend == "document" {
		return "collection"
	}
	return "table"
}

// storeChecker connects to the configured backend
func (a *app) storeChecker(ctx context.Context) (existsFunc, error) {
	if a.cfg.Search.Backend == "document" {
		return a.collectionChecker(ctx)
	}

	dialect, err := sqlbackend.ParseDialect(a.cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == sqlbackend.Postgres.Name {
		return a.pgChecker(ctx)
	}
	return a.sqliteChecker(ctx)
}

func (a *app) pgChecker(ctx context.Context) (existsFunc, error) {
	if a.cfg.Database.URL == "" {
		return nil, errors.New("database.url is not set (SEARCHY_DATABASE_URL)")
	}
	conn, err := pgx.Connect(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.onClose(conn.Close)

	return func(ctx context.Context, entity reflect.Type) (string, bool, error) {
		name := sqlbackend.TableName(entity)
		var regclass *string
		err := conn.QueryRow(ctx, "SELECT to_regclass($1)::text", pgx.Identifier{name}.Sanitize()).Scan(&regclass)
		if err != nil {
			return name, false, fmt.Errorf("failed to check table %s: %w", name, err)
		}
		return name, regclass != nil, nil
	}, nil
}

func (a *app) sqliteChecker(ctx context.Context) (existsFunc, error) {
	db, err := openSQL(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return db.Close() })

	return func(ctx context.Context, entity reflect.Type) (string, bool, error) {
		name := sqlbackend.TableName(entity)
		var n int
		err := db.QueryRowContext(ctx,
			"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
		if err != nil {
			return name, false, fmt.Errorf("failed to check table %s: %w", name, err)
		}
		return name, n > 0, nil
	}, nil
}

func (a *app) collectionChecker(ctx context.Context) (existsFunc, error) {
	client, err := openMongo(ctx, a.cfg.Document)
	if err != nil {
		return nil, err
	}
	a.onClose(client.Disconnect)

	names, err := client.Database(a.cfg.Document.Database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	return func(_ context.Context, entity reflect.Type) (string, bool, error) {
		name := docbackend.CollectionName(entity)
		return name, present[name], nil
	}, nil
}
