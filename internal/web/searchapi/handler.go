// Package searchapi exposes the search service over HTTP
package searchapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/orm/search"
	"github.com/conduit-lang/searchy/internal/web/cache"
	"github.com/conduit-lang/searchy/internal/web/middleware"
	"github.com/conduit-lang/searchy/internal/web/response"
)

const (
	defaultMaxBody = 1 << 20
	// CacheStatusHeader reports "hit", "miss" or "bypass" when results are
	// cached
	CacheStatusHeader = "X-Search-Cache"
)

// SearchRequest is the body of /search and /explain. A missing filter
// matches every entity.
type SearchRequest struct {
	Filter *query.Node `json:"filter,omitempty" yaml:"filter,omitempty"`
	Scopes []string    `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// SearchResponse is the body of a successful search
type SearchResponse struct {
	RequestID string          `json:"request_id"`
	Entity    string          `json:"entity"`
	Count     int             `json:"count"`
	Results   json.RawMessage `json:"results"`
}

// ExplainResponse describes how a search would run without running it
type ExplainResponse struct {
	RequestID  string   `json:"request_id"`
	Entity     string   `json:"entity"`
	Expression string   `json:"expression"`
	Joins      []string `json:"joins"`
}

// Property describes one searchable field
type Property struct {
	Path        string   `json:"path"`
	Kind        string   `json:"kind"`
	ValueType   string   `json:"value_type"`
	Annotations []string `json:"annotations,omitempty"`
}

// Entity describes one searchable entity
type Entity struct {
	Name       string     `json:"name"`
	Canonical  string     `json:"canonical"`
	Properties []Property `json:"properties"`
}

// API serves searches against one backend
type API struct {
	service *search.Service
	backend search.Backend
	logger  *zap.Logger
	maxBody int64
	timeout time.Duration
	cache   cache.Cache
	ttl     time.Duration
}

// Option configures an API
type Option func(*API)

// WithLogger sets the API logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMaxBodyBytes caps the size of request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithTimeout bounds each search request
func WithTimeout(d time.Duration) Option {
	return func(a *API) {
		a.timeout = d
	}
}

// WithCache caches search results for ttl. Results are keyed by entity
// and bound expression, so scopes and value conversion are part of the
// key.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *API) {
		a.cache = c
		a.ttl = ttl
	}
}

// New creates the API
func New(service *search.Service, backend search.Backend, opts ...Option) *API {
	a := &API{
		service: service,
		backend: backend,
		logger:  zap.NewNop(),
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes builds the router. Extra middleware runs after request IDs are
// assigned and before the search handlers.
func (a *API) Routes(extra ...middleware.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger, "/healthz"))
	r.Use(middleware.Recovery(a.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/entities", a.listEntities)

	r.Group(func(r chi.Router) {
		for _, mw := range extra {
			r.Use(mw)
		}
		if a.timeout > 0 {
			r.Use(chimw.Timeout(a.timeout))
		}
		r.Post("/search/{entity}", a.search)
		r.Post("/explain/{entity}", a.explain)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

// listEntities handles GET /entities
func (a *API) listEntities(w http.ResponseWriter, r *http.Request) {
	registry := a.service.Registry()
	types := registry.Entities()
	out := make([]Entity, 0, len(types))
	for _, t := range types {
		props, err := registry.AllProperties(t)
		if err != nil {
			response.RenderSearchError(w, err)
			return
		}
		e := Entity{Name: t.Name(), Canonical: schema.CanonicalName(t), Properties: make([]Property, len(props))}
		for i, p := range props {
			e.Properties[i] = describe(p)
		}
		out = append(out, e)
	}

	body, err := json.Marshal(out)
	if err != nil {
		response.RenderSearchError(w, err)
		return
	}
	if cache.NotModified(w, r, cache.ETag(body)) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func describe(p *schema.PropertyDescriptor) Property {
	prop := Property{Path: p.FieldName, Kind: p.Kind.String(), ValueType: p.ValueType.String()}
	for _, a := range p.Annotations {
		prop.Annotations = append(prop.Annotations, a.Name)
	}
	return prop
}

// prepare resolves the entity and binds the request body into an
// expression with the requested scopes applied
func (a *API) prepare(w http.ResponseWriter, r *http.Request) (reflect.Type, query.Expression, error) {
	root, err := a.service.Entity(chi.URLParam(r, "entity"))
	if err != nil {
		return nil, nil, err
	}

	req, err := a.decode(w, r)
	if err != nil {
		return nil, nil, err
	}

	var expr query.Expression
	if req.Filter != nil {
		if expr, err = a.service.Bind(root, req.Filter); err != nil {
			return nil, nil, err
		}
	}
	if expr, err = a.service.ApplyScopes(root, expr, req.Scopes...); err != nil {
		return nil, nil, err
	}
	return root, expr, nil
}

// decode reads and validates a search request body
func (a *API) decode(w http.ResponseWriter, r *http.Request) (*SearchRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &response.HTTPError{
				StatusCode: http.StatusRequestEntityTooLarge,
				Code:       "request_too_large",
				Message:    "request body too large",
			}
		}
		return nil, response.BadRequest("failed to read body", err)
	}

	var req SearchRequest
	if len(body) == 0 {
		return &req, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		err = yaml.Unmarshal(body, &req)
	case "", "application/json":
		err = json.Unmarshal(body, &req)
	default:
		return nil, &response.HTTPError{
			StatusCode: http.StatusUnsupportedMediaType,
			Code:       "unsupported_media_type",
			Message:    "unsupported content type " + mediaType,
		}
	}
	if err != nil {
		return nil, response.BadRequest("malformed request body", err)
	}
	return &req, nil
}

// search handles POST /search/{entity}
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	root, expr, err := a.prepare(w, r)
	if err != nil {
		response.RenderSearchError(w, err)
		return
	}

	// keyword results change with the clock and are never cached
	cacheable := a.cache != nil && !query.HasKeyword(expr)
	key := ""
	if cacheable {
		formatted := ""
		if expr != nil {
			formatted = query.Format(expr)
		}
		key = cache.Key(schema.CanonicalName(root), formatted)
	}

	var results []byte
	hit := false
	if cacheable {
		results, hit = a.cached(r, key)
	}
	if a.cache != nil {
		w.Header().Set(CacheStatusHeader, cacheStatus(cacheable, hit))
	}
	if !hit {
		rows, err := a.service.Find(r.Context(), root, expr, a.backend)
		if err != nil {
			a.logFailure(r, err)
			response.RenderSearchError(w, err)
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		if results, err = json.Marshal(rows); err != nil {
			response.RenderSearchError(w, err)
			return
		}
		if cacheable {
			a.store(r, key, results)
		}
	}

	if cache.NotModified(w, r, cache.ETag(results)) {
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(results, &items); err != nil {
		response.RenderSearchError(w, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, &SearchResponse{
		RequestID: middleware.GetRequestID(r.Context()),
		Entity:    root.Name(),
		Count:     len(items),
		Results:   results,
	})
}

// cacheStatus returns the value of CacheStatusHeader
func cacheStatus(cacheable, hit bool) string {
	switch {
	case !cacheable:
		return "bypass"
	case hit:
		return "hit"
	}
	return "miss"
}

// cached returns the stored results for key. Cache failures are logged and
// treated as misses.
func (a *API) cached(r *http.Request, key string) ([]byte, bool) {
	if a.cache == nil {
		return nil, false
	}
	results, err := a.cache.Get(r.Context(), key)
	switch {
	case err == nil:
		return results, true
	case !errors.Is(err, cache.ErrMiss):
		a.logger.Warn("result cache unavailable",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	return nil, false
}

func (a *API) store(r *http.Request, key string, results []byte) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(r.Context(), key, results, a.ttl); err != nil {
		a.logger.Warn("failed to cache results",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
}

// explain handles POST /explain/{entity}
func (a *API) explain(w http.ResponseWriter, r *http.Request) {
	root, expr, err := a.prepare(w, r)
	if err != nil {
		response.RenderSearchError(w, err)
		return
	}

	plan, err := a.service.Plan(root, expr)
	if err != nil {
		response.RenderSearchError(w, err)
		return
	}

	joins := make([]string, 0, plan.Graph.Len())
	for _, spec := range plan.Graph.Joins(nil) {
		joins = append(joins, spec.String())
	}
	formatted := ""
	if expr != nil {
		formatted = query.Format(expr)
	}
	response.RenderJSON(w, http.StatusOK, &ExplainResponse{
		RequestID:  middleware.GetRequestID(r.Context()),
		Entity:     root.Name(),
		Expression: formatted,
		Joins:      joins,
	})
}

func (a *API) logFailure(r *http.Request, err error) {
	status, code := response.Classify(err)
	level := a.logger.Debug
	if status >= http.StatusInternalServerError {
		level = a.logger.Error
	}
	level("search failed",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("code", code),
		zap.Error(err),
	)
}
