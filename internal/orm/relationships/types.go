// Package relationships resolves the joins a search needs: join strategy
// selection, the per-request join graph and field path navigation.
package relationships

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// JoinKind represents the type of join
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// String returns the SQL representation of the join kind
func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	default:
		return "UNKNOWN"
	}
}

// JoinHint is the join semantics a handler picks for a property
type JoinHint struct {
	Kind  JoinKind
	Fetch bool
}

// DefaultHint is a plain inner join used for filtering only
var DefaultHint = JoinHint{Kind: InnerJoin}

// FetchHint is a left join that also materializes the relation
var FetchHint = JoinHint{Kind: LeftJoin, Fetch: true}

// Wider returns the union of both hints: LEFT beats INNER and fetching
// beats not fetching
func (h JoinHint) Wider(other JoinHint) JoinHint {
	out := h
	if other.Kind == LeftJoin {
		out.Kind = LeftJoin
	}
	out.Fetch = h.Fetch || other.Fetch
	return out
}

// Covers reports whether h is at least as wide as other in both dimensions
func (h JoinHint) Covers(other JoinHint) bool {
	return h.Wider(other) == h
}

// String returns the join kind, suffixed with FETCH for fetch joins
func (h JoinHint) String() string {
	if h.Fetch {
		return h.Kind.String() + " FETCH"
	}
	return h.Kind.String()
}

// JoinSpec is one resolved join edge
type JoinSpec struct {
	Key       string
	OwnerType reflect.Type
	// JoinName is the dotted path of the owner from the root, empty for
	// direct children of the root
	JoinName string
	Property *schema.PropertyDescriptor
	Kind     JoinKind
	Fetch    bool
}

// Hint returns the join semantics of the edge
func (j *JoinSpec) Hint() JoinHint {
	return JoinHint{Kind: j.Kind, Fetch: j.Fetch}
}

// Path returns the dotted path of the joined property from the root
func (j *JoinSpec) Path() string {
	if j.JoinName == "" {
		return j.Property.FieldName
	}
	return j.JoinName + "." + j.Property.FieldName
}

// SameEdge reports whether both specs join the same field of the same owner
func (j *JoinSpec) SameEdge(other *JoinSpec) bool {
	return j.OwnerType == other.OwnerType && j.Property.FieldName == other.Property.FieldName
}

// String returns a short diagnostic form
func (j *JoinSpec) String() string {
	return fmt.Sprintf("%s JOIN %s (%s)", j.Hint(), j.Path(), j.Key)
}
