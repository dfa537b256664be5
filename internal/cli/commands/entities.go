package commands

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/searchy/internal/cli/ui"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// NewEntitiesCommand creates the entities command
func NewEntitiesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entities [entity]",
		Short: "List entities or the searchable fields of one entity",
		Example: `  # List every registered entity
  searchy entities

  # Show the fields of Person, with their kinds and value types
  searchy entities person`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				return a.printEntity(cmd, args[0])
			}
			return a.printEntities(cmd)
		},
	}
}

func (a *app) printEntities(cmd *cobra.Command) error {
	registry := a.service.Registry()

	table := ui.NewTable(cmd.OutOrStdout(), a.noColor, "Entity", "Canonical", "Fields", "Scopes")
	for _, t := range registry.Entities() {
		props, err := registry.AllProperties(t)
		if err != nil {
			return err
		}
		table.AddRow(t.Name(), schema.CanonicalName(t), strconv.Itoa(len(props)),
			strings.Join(a.service.Scopes(t).List(), ", "))
	}
	table.Render()
	return nil
}

func (a *app) printEntity(cmd *cobra.Command, name string) error {
	root, err := a.entity(name)
	if err != nil {
		return err
	}
	props, err := a.service.Registry().AllProperties(root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ui.Header(out, schema.CanonicalName(root), a.noColor)
	table := ui.NewTable(out, a.noColor, "Field", "Kind", "Value", "Target", "Annotations")
	for _, p := range props {
		table.AddRow(p.FieldName, p.Kind.String(), p.ValueType.String(), target(a.service.Registry(), p), annotations(p))
	}
	table.Render()

	if scopes := a.service.Scopes(root).List(); len(scopes) > 0 {
		fmt.Fprintf(out, "\nScopes: %s\n", strings.Join(scopes, ", "))
	}
	return nil
}

// target names the entity a relation points at
func target(registry *schema.Registry, p *schema.PropertyDescriptor) string {
	t := p.ElementType()
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || !registry.IsEntity(t) {
		return ""
	}
	return t.Name()
}

func annotations(p *schema.PropertyDescriptor) string {
	parts := make([]string, 0, len(p.Annotations))
	for _, an := range p.Annotations {
		parts = append(parts, an.Name)
	}
	return strings.Join(parts, ",")
}
