package relationships

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Navigator is a backend node paths are resolved against: the query root
// or a join created from it. Joins created through Join must be returned
// by Existing afterwards.
type Navigator interface {
	Type() reflect.Type
	// Get returns the backend reference to a direct attribute of the node
	Get(prop *schema.PropertyDescriptor) any
	// Existing returns a join on prop already attached to the node
	Existing(prop *schema.PropertyDescriptor) (Navigator, bool)
	// Join attaches a join on prop to the node
	Join(prop *schema.PropertyDescriptor, hint JoinHint) Navigator
}

// PathInfo is the result of resolving a field path for predicate building
type PathInfo struct {
	Path string
	// Ref is the backend reference: an attribute from Get, or a Navigator
	// when the final segment itself was joined
	Ref      any
	Property *schema.PropertyDescriptor
	// Parent is the node the final segment hangs off
	Parent Navigator
	Joined bool
}

// PathFor resolves a dotted path against a navigation root. Intermediate
// segments reuse a join already on the node, else join with the graph's
// edge, else join with the default hint. The final segment is joined only
// when a join or an edge for it exists. After a map property the segments
// key and value address its entries.
func (g *JoinGraph) PathFor(registry *schema.Registry, path string, root Navigator) (PathInfo, error) {
	return g.resolveRef(registry, path, root, true)
}

// AttributeFor resolves a dotted path like PathFor but always returns the
// final segment as a plain attribute of its parent
func (g *JoinGraph) AttributeFor(registry *schema.Registry, path string, root Navigator) (PathInfo, error) {
	return g.resolveRef(registry, path, root, false)
}

func (g *JoinGraph) resolveRef(registry *schema.Registry, path string, root Navigator, joinLeaf bool) (PathInfo, error) {
	if path == "" {
		return PathInfo{}, invalidPath(path, "", root.Type(), nil)
	}

	segments := strings.Split(path, ".")
	nav := root
	var prev *schema.PropertyDescriptor

	for i, segment := range segments {
		owner := nav.Type()
		if segment == "" {
			return PathInfo{}, invalidPath(path, segment, owner, nil)
		}
		last := i == len(segments)-1

		// A map join already points at the values, so a value segment
		// keeps the current node.
		if followsMap(prev, segment) {
			entry, err := mapEntry(registry, prev, path, segment, owner, last)
			if err != nil {
				return PathInfo{}, err
			}
			if last {
				return PathInfo{Path: path, Ref: nav.Get(entry), Property: entry, Parent: nav}, nil
			}
			prev = entry
			continue
		}

		prop, err := registry.Describe(owner, segment)
		if err != nil {
			return PathInfo{}, invalidPath(path, segment, owner, err)
		}

		if last {
			info := PathInfo{Path: path, Property: prop, Parent: nav}
			if joinLeaf && prop.IsNavigable() {
				if joined, ok := g.leafJoin(nav, prop); ok {
					info.Ref = joined
					info.Joined = true
					return info, nil
				}
			}
			info.Ref = nav.Get(prop)
			return info, nil
		}

		if !prop.IsNavigable() {
			return PathInfo{}, invalidPath(path, segment, owner,
				fmt.Errorf("%w: cannot traverse %s field", ErrInvalidFieldPath, prop.Kind))
		}
		nav = g.step(nav, prop)
		prev = prop
	}
	return PathInfo{}, invalidPath(path, "", root.Type(), nil)
}

// followsMap reports whether segment addresses the keys or values of the
// map property prev
func followsMap(prev *schema.PropertyDescriptor, segment string) bool {
	return prev != nil && prev.Kind == schema.KindMap && schema.IsMapEntrySegment(segment)
}

// mapEntry describes a key or value segment. Keys are always leaves.
func mapEntry(registry *schema.Registry, m *schema.PropertyDescriptor, path, segment string, owner reflect.Type, last bool) (*schema.PropertyDescriptor, error) {
	entry, err := registry.MapEntry(m, segment)
	if err != nil {
		return nil, invalidPath(path, segment, owner, err)
	}
	if !last && entry.Entry == schema.EntryKey {
		return nil, invalidPath(path, segment, owner,
			fmt.Errorf("%w: cannot traverse map key", ErrInvalidFieldPath))
	}
	return entry, nil
}

// step follows one intermediate segment
func (g *JoinGraph) step(nav Navigator, prop *schema.PropertyDescriptor) Navigator {
	if existing, ok := nav.Existing(prop); ok {
		return existing
	}
	if spec, ok := g.joins[prop.QualifiedName]; ok {
		return nav.Join(prop, spec.Hint())
	}
	return nav.Join(prop, DefaultHint)
}

// leafJoin joins a navigable final segment when a join or edge exists
func (g *JoinGraph) leafJoin(nav Navigator, prop *schema.PropertyDescriptor) (Navigator, bool) {
	if existing, ok := nav.Existing(prop); ok {
		return existing, true
	}
	if spec, ok := g.joins[prop.QualifiedName]; ok {
		return nav.Join(prop, spec.Hint()), true
	}
	return nil, false
}

// MaterializeFetches attaches every fetch join of the graph to the root,
// parents before children
func (g *JoinGraph) MaterializeFetches(registry *schema.Registry, root Navigator) error {
	for _, spec := range g.Joins(IsFetched) {
		if _, err := g.PathFor(registry, spec.Path(), root); err != nil {
			return err
		}
	}
	return nil
}

// DescribePath returns the descriptor of the final segment of a dotted
// path without touching any backend. A key or value segment after a map
// yields the synthetic entry descriptor.
func DescribePath(registry *schema.Registry, root reflect.Type, path string) (*schema.PropertyDescriptor, error) {
	if path == "" {
		return nil, invalidPath(path, "", root, nil)
	}

	owner := root
	var prev *schema.PropertyDescriptor
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		if segment == "" {
			return nil, invalidPath(path, segment, owner, nil)
		}
		last := i == len(segments)-1

		if followsMap(prev, segment) {
			entry, err := mapEntry(registry, prev, path, segment, owner, last)
			if err != nil || last {
				return entry, err
			}
			prev = entry
			continue
		}

		prop, err := registry.Describe(owner, segment)
		if err != nil {
			return nil, invalidPath(path, segment, owner, err)
		}
		if last {
			return prop, nil
		}
		if !prop.IsNavigable() {
			return nil, invalidPath(path, segment, owner,
				fmt.Errorf("%w: cannot traverse %s field", ErrInvalidFieldPath, prop.Kind))
		}
		owner = prop.ElementType()
		prev = prop
	}
	return nil, invalidPath(path, "", root, nil)
}
