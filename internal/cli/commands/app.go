package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/searchy/internal/cli/config"
	"github.com/conduit-lang/searchy/internal/cli/ui"
	"github.com/conduit-lang/searchy/internal/orm/convert"
	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/orm/search"
	"github.com/conduit-lang/searchy/internal/sample"
	"github.com/conduit-lang/searchy/internal/web/response"
)

// displayError carries a formatted message for Execute to print
type displayError struct {
	msg ui.Message
	err error
}

// Error returns the wrapped error message
func (e *displayError) Error() string { return e.err.Error() }

// Unwrap returns the wrapped error
func (e *displayError) Unwrap() error { return e.err }

// app is the state shared by commands after configuration is loaded
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *search.Service
	noColor bool
	closers []func(context.Context) error
}

// newApp loads the configuration and builds the registry, service and logger
func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, &displayError{msg: ui.ConfigFailure(err, opts.noColor), err: err}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, &displayError{msg: ui.ConfigFailure(err, opts.noColor), err: err}
	}

	service, err := newService(cfg.Search, logger)
	if err != nil {
		return nil, &displayError{msg: ui.ConfigFailure(err, opts.noColor), err: err}
	}
	return &app{cfg: cfg, logger: logger, service: service, noColor: opts.noColor}, nil
}

// newService registers the sample model and configures the search service
func newService(cfg config.SearchConfig, logger *zap.Logger) (*search.Service, error) {
	registry := schema.NewRegistry(schema.WithLogger(logger))
	if err := registry.Register(sample.Models()...); err != nil {
		return nil, fmt.Errorf("failed to register entities: %w", err)
	}

	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("search.locale: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("search.timezone: %w", err)
	}
	converter := convert.NewTemporalConverter(
		convert.WithLocale(tag),
		convert.WithLocation(loc),
		convert.WithLayouts(cfg.Layouts...),
		convert.WithLogger(logger),
	)

	service := search.New(registry,
		search.WithChain(relationships.NewChain(relationships.AnnotationHandler{})),
		search.WithConverter(converter),
		search.WithLogger(logger),
		search.WithStrictJoins(cfg.StrictJoins),
		search.WithFetchAll(cfg.FetchAll),
	)
	registerScopes(service)
	return service, nil
}

// registerScopes adds the named scopes of the sample model
func registerScopes(s *search.Service) {
	people := s.Scopes(reflect.TypeOf(sample.Person{}))
	people.Register(query.NewScope("employed", query.Negate(query.Equals("job", query.Null))))
	people.Register(query.NewScope("born_today", query.Equals("birthday", query.CurrentDate)))
	people.Register(query.NewScope("named", query.Equals("lastName", query.Param("name")), "name"))

	s.Scopes(reflect.TypeOf(sample.Vehicle{})).Register(query.NewScope("cars", query.Equals("vehicleType", "car")))
}

// onClose registers a cleanup run when the command finishes
func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// closeAll runs the registered closers in reverse order. Each closer runs
// at most once.
func (a *app) closeAll(ctx context.Context) error {
	closers := a.closers
	a.closers = nil

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Close releases connections opened by the command
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.closeAll(ctx)
	_ = a.logger.Sync()
	return err
}

// entity resolves an entity name, suggesting close matches when unknown
func (a *app) entity(name string) (reflect.Type, error) {
	t, err := a.service.Entity(name)
	if err == nil {
		return t, nil
	}
	var names []string
	for _, e := range a.service.Registry().Entities() {
		names = append(names, e.Name())
	}
	return nil, &displayError{msg: ui.UnknownEntity(name, names, a.noColor), err: err}
}

// fail decorates search errors for display
func (a *app) fail(err error) error {
	var de *displayError
	if err == nil || errors.As(err, &de) {
		return err
	}
	status, code := response.Classify(err)
	if status >= 500 {
		return err
	}
	return &displayError{msg: ui.SearchFailure(code, err.Error(), response.Details(err), a.noColor), err: err}
}

// filterDocument is the file form of a search: a filter plus scope names
type filterDocument struct {
	Filter *query.Node `json:"filter" yaml:"filter"`
	Scopes []string    `json:"scopes" yaml:"scopes"`
}

// readFilter reads a filter document from path, or stdin for "-". YAML is
// used for .yaml and .yml files and JSON otherwise. A document without a
// top-level "filter" or "scopes" key is read as a bare expression, and an
// empty document matches everything.
func readFilter(path string, stdin io.Reader) (*filterDocument, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read filter: %w", err)
	}
	return parseFilter(data, strings.ToLower(filepath.Ext(path)))
}

// parseFilter decodes a filter document as YAML or JSON by extension
func parseFilter(data []byte, ext string) (*filterDocument, error) {
	doc := &filterDocument{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	unmarshal := json.Unmarshal
	if ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}

	var top map[string]any
	if err := unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", query.ErrInvalidExpression, err)
	}

	if len(top) == 0 {
		return doc, nil
	}
	_, wrapped := top["filter"]
	_, scoped := top["scopes"]
	if wrapped || scoped {
		if err := unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("%w: %v", query.ErrInvalidExpression, err)
		}
		return doc, nil
	}

	doc.Filter = &query.Node{}
	if err := unmarshal(data, doc.Filter); err != nil {
		return nil, fmt.Errorf("%w: %v", query.ErrInvalidExpression, err)
	}
	return doc, nil
}

// expression binds a filter document for root and applies its scopes
func (a *app) expression(root reflect.Type, doc *filterDocument, scopes []string) (query.Expression, error) {
	var (
		expr query.Expression
		err  error
	)
	if doc != nil && doc.Filter != nil {
		if expr, err = a.service.Bind(root, doc.Filter); err != nil {
			return nil, err
		}
	}
	if doc != nil {
		scopes = append(append([]string(nil), doc.Scopes...), scopes...)
	}
	return a.service.ApplyScopes(root, expr, scopes...)
}
