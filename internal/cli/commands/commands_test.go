package commands

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/searchy/internal/cli/ui"
	"github.com/conduit-lang/searchy/internal/orm/query"
)

// writeConfig writes a searchy.yaml for a SQLite database in a temp dir
func writeConfig(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "people.db")
	cfgPath = filepath.Join(dir, "searchy.yaml")
	content := "database:\n  driver: sqlite3\n  url: " + dbPath + "\nlog:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, dbPath
}

func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, dbPath string, stmts ...string) {
	t.Helper()

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "searchy", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"version", "entities", "compile", "search", "serve", "db"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.2.3-test"
	defer func() { Version = "dev" }()

	cfg, _ := writeConfig(t, "")
	out, err := run(t, cfg, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3-test")
}

func TestEntitiesCommand(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := run(t, cfg, "", "entities")
	require.NoError(t, err)
	for _, name := range []string{"Address", "Feature", "Job", "Person", "Vehicle"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "born_today, employed, named")

	out, err = run(t, cfg, "", "entities", "person")
	require.NoError(t, err)
	assert.Contains(t, out, "firstName")
	assert.Contains(t, out, "many_to_many")
	assert.Contains(t, out, "Scopes: born_today, employed, named")
}

func TestCompile_SQL(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := run(t, cfg, `{"field": "addresses.city", "value": "Paris"}`, "compile", "-e", "person")
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT persons.* FROM persons "+
			"INNER JOIN persons_addresses j1 ON j1.person_id = persons.id "+
			"INNER JOIN addresses j2 ON j2.id = j1.address_id "+
			"WHERE j2.city = ?\n"+
			"-- args: \"Paris\"\n",
		out)
}

func TestCompile_Explain(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := run(t, cfg, `{"field": "job.title", "value": "Engineer"}`,
		"compile", "-e", "person", "--explain", "--dialect", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "-- search ")
	assert.Contains(t, out, "-- where ")
	assert.Contains(t, out, "JOIN job")
	assert.Contains(t, out, "$1")
}

func TestCompile_Document(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := run(t, cfg, "filter:\n  field: firstName\n  value: John\n",
		"compile", "-e", "person", "--backend", "document", "-f", writeFile(t, "filter.yaml",
			"filter:\n  field: firstName\n  value: John\n"))
	require.NoError(t, err)
	assert.Contains(t, out, `"aggregate": "persons"`)
	assert.Contains(t, out, `"$match"`)
	assert.Contains(t, out, `"$eq": "John"`)
}

func TestCompile_Scopes(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := run(t, cfg, `{"filter": {"field": "lastName", "value": "Doe"}, "scopes": ["employed"]}`,
		"compile", "-e", "person")
	require.NoError(t, err)
	assert.Contains(t, out, "persons.last_name = ?")
	assert.Contains(t, out, "NOT")
}

func TestCompile_Errors(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	tests := []struct {
		name   string
		stdin  string
		args   []string
		expect string
	}{
		{"unknown entity", `{"field": "x", "value": 1}`, []string{"-e", "persn"}, "Did you mean: Person?"},
		{"invalid path", `{"field": "firstName.size", "value": 1}`, []string{"-e", "person"}, "INVALID FIELD PATH"},
		{"unknown scope", `{}`, []string{"-e", "person", "-s", "retired"}, "UNKNOWN SCOPE"},
		{"scope needs arguments", `{}`, []string{"-e", "person", "-s", "named"}, "INVALID EXPRESSION"},
		{"malformed", `{"field":`, []string{"-e", "person"}, "INVALID EXPRESSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfg, tt.stdin, append([]string{"compile"}, tt.args...)...)
			require.Error(t, err)

			var de *displayError
			require.True(t, errors.As(err, &de), "got %T: %v", err, err)
			msg := de.msg
			msg.NoColor = true
			assert.Contains(t, ui.Format(msg), tt.expect)
		})
	}
}

func TestSearch_SQLite(t *testing.T) {
	cfg, dbPath := writeConfig(t, "")
	seed(t, dbPath,
		"CREATE TABLE persons (id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT)",
		"INSERT INTO persons (id, first_name, last_name) VALUES (1, 'John', 'Doe'), (2, 'Jane', 'Roe')",
	)

	out, err := run(t, cfg, `{"field": "firstName", "value": "John"}`, "search", "-e", "person", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 1, "first_name": "John", "last_name": "Doe"}]`, out)

	out, err = run(t, cfg, `{"field": "lastName", "op": "IN", "values": ["Doe", "Roe"]}`, "search", "-e", "person")
	require.NoError(t, err)
	assert.Contains(t, out, "Jane")
	assert.Contains(t, out, "ok 2 Person found")
}

func TestSearch_NoDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "searchy.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0o644))

	_, err := run(t, cfg, `{}`, "search", "-e", "person")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is not set")
}

func TestDBCheck_SQLite(t *testing.T) {
	cfg, dbPath := writeConfig(t, "")
	seed(t, dbPath, "CREATE TABLE persons (id INTEGER PRIMARY KEY)")

	out, err := run(t, cfg, "", "db", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 of 5 entities have no table")
	assert.Contains(t, out, "persons")
	assert.Contains(t, out, "missing")

	seed(t, dbPath,
		"CREATE TABLE addresses (id INTEGER PRIMARY KEY)",
		"CREATE TABLE jobs (id INTEGER PRIMARY KEY)",
		"CREATE TABLE vehicles (id INTEGER PRIMARY KEY)",
		"CREATE TABLE features (id INTEGER PRIMARY KEY)",
	)
	out, err = run(t, cfg, "", "db", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "all entities are searchable")
}

func TestConfigFailure(t *testing.T) {
	cfg, _ := writeConfig(t, "search:\n  backend: graph\n")

	_, err := run(t, cfg, "", "entities")
	var de *displayError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, ui.Format(de.msg), "CONFIGURATION ERROR")
}

func TestParseFilter(t *testing.T) {
	bare, err := parseFilter([]byte(`{"field": "firstName", "value": "John"}`), ".json")
	require.NoError(t, err)
	assert.Equal(t, &query.Node{Field: "firstName", Value: "John"}, bare.Filter)
	assert.Empty(t, bare.Scopes)

	wrapped, err := parseFilter([]byte("scopes: [employed]\nfilter:\n  not:\n    field: job\n    value: null\n"), ".yml")
	require.NoError(t, err)
	assert.Equal(t, []string{"employed"}, wrapped.Scopes)
	require.NotNil(t, wrapped.Filter.Not)
	assert.Equal(t, "job", wrapped.Filter.Not.Field)

	empty, err := parseFilter([]byte(" {} "), ".json")
	require.NoError(t, err)
	assert.Nil(t, empty.Filter)

	blank, err := parseFilter(nil, ".yaml")
	require.NoError(t, err)
	assert.Nil(t, blank.Filter)

	scopesOnly, err := parseFilter([]byte(`{"scopes": ["employed"]}`), "")
	require.NoError(t, err)
	assert.Nil(t, scopesOnly.Filter)

	_, err = parseFilter([]byte(`[1, 2]`), ".json")
	assert.ErrorIs(t, err, query.ErrInvalidExpression)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
