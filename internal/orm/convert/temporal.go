// Package convert turns literal strings into typed comparison values
package convert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// ErrUnparseableTemporal is returned when no configured layout matches
var ErrUnparseableTemporal = errors.New("unparseable temporal value")

// layoutKind orders how a layout is tried
type layoutKind int

const (
	offsetAware layoutKind = iota
	localClock
	dateOnly
)

func (k layoutKind) String() string {
	switch k {
	case offsetAware:
		return "offset"
	case localClock:
		return "local"
	default:
		return "date"
	}
}

type layout struct {
	value string
	kind  layoutKind
}

// classifyLayout decides whether a layout carries a zone, a clock, or
// only a date
func classifyLayout(s string) layout {
	switch {
	case strings.Contains(s, "Z07") || strings.Contains(s, "-07") || strings.Contains(s, "MST"):
		return layout{value: s, kind: offsetAware}
	case strings.Contains(s, "15") || strings.Contains(s, "03") || strings.Contains(s, "04"):
		return layout{value: s, kind: localClock}
	default:
		return layout{value: s, kind: dateOnly}
	}
}

// DefaultLayouts are the layouts accepted besides the locale's slash date
var DefaultLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// monthFirst lists regions that write dates month before day
var monthFirst = map[string]bool{
	"US": true, "PH": true, "FM": true, "MH": true, "PW": true,
	"BZ": true, "PR": true, "GU": true, "AS": true, "VI": true,
}

// SlashLayout returns the slash-separated date layout used in a locale
func SlashLayout(tag language.Tag) string {
	region, _ := tag.Region()
	if monthFirst[region.String()] {
		return "01/02/2006"
	}
	return "02/01/2006"
}

// TemporalConverter parses temporal literals using a fixed set of layouts
type TemporalConverter struct {
	layouts  []string
	locale   language.Tag
	location *time.Location
	logger   *zap.Logger

	ordered []layout
}

// Option configures a TemporalConverter
type Option func(*TemporalConverter)

// WithLayouts replaces the default layouts
func WithLayouts(layouts ...string) Option {
	return func(c *TemporalConverter) {
		if len(layouts) > 0 {
			c.layouts = layouts
		}
	}
}

// WithLocale sets the locale that picks the slash date layout
func WithLocale(tag language.Tag) Option {
	return func(c *TemporalConverter) {
		c.locale = tag
	}
}

// WithLocation sets the location for values without an offset
func WithLocation(loc *time.Location) Option {
	return func(c *TemporalConverter) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithLogger sets the converter logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *TemporalConverter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTemporalConverter creates a converter. Without options it accepts
// DefaultLayouts plus the en-US slash layout and reads naive values as UTC.
func NewTemporalConverter(opts ...Option) *TemporalConverter {
	c := &TemporalConverter{
		layouts:  DefaultLayouts,
		locale:   language.AmericanEnglish,
		location: time.UTC,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	all := append(append([]string{}, c.layouts...), SlashLayout(c.locale))
	for _, kind := range []layoutKind{offsetAware, localClock, dateOnly} {
		for _, s := range all {
			if l := classifyLayout(s); l.kind == kind {
				c.ordered = append(c.ordered, l)
			}
		}
	}
	return c
}

// Layouts returns the layouts in the order they are tried
func (c *TemporalConverter) Layouts() []string {
	out := make([]string, len(c.ordered))
	for i, l := range c.ordered {
		out[i] = l.value
	}
	return out
}

// Location returns the location used for values without an offset
func (c *TemporalConverter) Location() *time.Location {
	return c.location
}

// Convert parses s trying offset-aware layouts, then local date-times,
// then plain dates. Values without an offset are read in the configured
// location; dates at the start of the day. The result is in UTC.
func (c *TemporalConverter) Convert(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range c.ordered {
		var (
			t   time.Time
			err error
		)
		if l.kind == offsetAware {
			t, err = time.Parse(l.value, s)
		} else {
			t, err = time.ParseInLocation(l.value, s, c.location)
		}
		if err != nil {
			continue
		}
		c.logger.Debug("converted temporal value",
			zap.String("input", s),
			zap.String("layout", l.value),
			zap.Stringer("kind", l.kind),
		)
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTemporal, s)
}

// ConvertOffset parses s with an offset-aware layout and keeps its offset
func (c *TemporalConverter) ConvertOffset(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range c.ordered {
		if l.kind != offsetAware {
			continue
		}
		if t, err := time.Parse(l.value, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q has no offset", ErrUnparseableTemporal, s)
}
