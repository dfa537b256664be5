package relationships

import "github.com/conduit-lang/searchy/internal/orm/schema"

// Handler decides the join semantics for the properties it supports
type Handler interface {
	Supports(prop *schema.PropertyDescriptor) bool
	Handle(prop *schema.PropertyDescriptor) JoinHint
}

// DefaultHandler supports every property with a plain inner join
type DefaultHandler struct{}

// Supports accepts every property
func (DefaultHandler) Supports(*schema.PropertyDescriptor) bool { return true }

// Handle returns DefaultHint
func (DefaultHandler) Handle(*schema.PropertyDescriptor) JoinHint { return DefaultHint }

// FetchAllHandler supports every property and fetches it with a left join
type FetchAllHandler struct{}

// Supports accepts every property
func (FetchAllHandler) Supports(*schema.PropertyDescriptor) bool { return true }

// Handle returns FetchHint
func (FetchAllHandler) Handle(*schema.PropertyDescriptor) JoinHint { return FetchHint }

// AnnotationHandler reads the `fetch` and `optional` property annotations
type AnnotationHandler struct{}

// Supports accepts properties tagged fetch or optional
func (AnnotationHandler) Supports(prop *schema.PropertyDescriptor) bool {
	return prop.HasAnnotation("fetch") || prop.HasAnnotation("optional")
}

// Handle maps fetch to FetchHint and optional to a plain left join
func (AnnotationHandler) Handle(prop *schema.PropertyDescriptor) JoinHint {
	if prop.HasAnnotation("fetch") {
		return FetchHint
	}
	return JoinHint{Kind: LeftJoin}
}

type funcHandler struct {
	supports func(*schema.PropertyDescriptor) bool
	handle   func(*schema.PropertyDescriptor) JoinHint
}

func (h funcHandler) Supports(prop *schema.PropertyDescriptor) bool { return h.supports(prop) }

func (h funcHandler) Handle(prop *schema.PropertyDescriptor) JoinHint { return h.handle(prop) }

// NewHandler builds a handler from two functions
func NewHandler(supports func(*schema.PropertyDescriptor) bool, handle func(*schema.PropertyDescriptor) JoinHint) Handler {
	return funcHandler{supports: supports, handle: handle}
}

// Chain evaluates handlers in registration order. The terminal handler
// always matches, so Resolve is total. A Chain is immutable.
type Chain struct {
	handlers []Handler
	terminal Handler
}

// NewChain builds a chain terminated by DefaultHandler
func NewChain(handlers ...Handler) *Chain {
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &Chain{handlers: hs, terminal: DefaultHandler{}}
}

// FetchAllChain returns a chain that eagerly fetches every relation
func FetchAllChain() *Chain {
	return NewChain(FetchAllHandler{})
}

// Resolve returns the hint of the first handler supporting the property
func (c *Chain) Resolve(prop *schema.PropertyDescriptor) JoinHint {
	for _, h := range c.handlers {
		if h.Supports(prop) {
			return h.Handle(prop)
		}
	}
	return c.terminal.Handle(prop)
}

// Handlers returns the configured handlers followed by the terminal one
func (c *Chain) Handlers() []Handler {
	out := make([]Handler, 0, len(c.handlers)+1)
	out = append(out, c.handlers...)
	return append(out, c.terminal)
}
