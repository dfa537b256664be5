package query

import (
	"time"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
)

// Predicate is an opaque backend condition. The compiler only threads
// predicates through the builder's combinators.
type Predicate = any

// PredicateBuilder is implemented by every storage backend
type PredicateBuilder interface {
	// Root is the navigation root joins are attached to
	Root() relationships.Navigator

	Equal(p relationships.PathInfo, value any) (Predicate, error)
	// Like matches a pattern using % as the wildcard
	Like(p relationships.PathInfo, pattern string) (Predicate, error)
	// ILike matches a lower-cased pattern case-insensitively
	ILike(p relationships.PathInfo, pattern string) (Predicate, error)
	LessThan(p relationships.PathInfo, value any) (Predicate, error)
	LessThanOrEquals(p relationships.PathInfo, value any) (Predicate, error)
	GreaterThan(p relationships.PathInfo, value any) (Predicate, error)
	GreaterThanOrEquals(p relationships.PathInfo, value any) (Predicate, error)
	In(p relationships.PathInfo, values []any) (Predicate, error)
	IsNull(p relationships.PathInfo) (Predicate, error)
	IsEmpty(p relationships.PathInfo) (Predicate, error)

	Not(p Predicate) Predicate
	And(preds ...Predicate) Predicate
	Or(preds ...Predicate) Predicate
}

// Clock returns the invocation moment keywords are resolved against
type Clock func() time.Time

// DayBounds returns the start of the day containing now and the start of
// the following day, in now's location
func DayBounds(now time.Time) (start, end time.Time) {
	y, m, d := now.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// KeywordTime returns the instant a keyword stands for
func KeywordTime(k Keyword, now time.Time) time.Time {
	if k == CurrentDate {
		start, _ := DayBounds(now)
		return start
	}
	return now
}
