package docbackend

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Finder runs an aggregation pipeline against a collection
type Finder interface {
	Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error)
}

// MongoFinder runs pipelines against a MongoDB database
type MongoFinder struct {
	DB *mongo.Database
}

// Aggregate runs the pipeline on a collection and decodes every document
func (f MongoFinder) Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	cursor, err := f.DB.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []bson.M
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Executor creates builders and runs compiled searches through a Finder
type Executor struct {
	finder   Finder
	registry *schema.Registry
	opts     []Option
	logger   *zap.Logger
}

// NewExecutor creates an executor. Builder options apply to every builder
// it creates.
func NewExecutor(finder Finder, registry *schema.Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		finder:   finder,
		registry: registry,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
	}
}

// NewBuilder creates a fresh builder rooted at an entity type
func (e *Executor) NewBuilder(root reflect.Type) (query.PredicateBuilder, error) {
	return NewBuilder(e.registry, root, e.opts...)
}

// Execute runs the pipeline for pred and returns the matching documents
func (e *Executor) Execute(ctx context.Context, b query.PredicateBuilder, pred query.Predicate) ([]map[string]any, error) {
	builder, ok := b.(*Builder)
	if !ok {
		return nil, fmt.Errorf("%w: builder %T", ErrNotDocument, b)
	}

	pipeline, err := builder.Pipeline(pred)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	e.logger.Debug("executing search",
		zap.String("collection", builder.Collection()),
		zap.Int("stages", len(pipeline)),
	)

	docs, err := e.finder.Aggregate(ctx, builder.Collection(), pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to run pipeline: %w", err)
	}

	results := make([]map[string]any, len(docs))
	for i, doc := range docs {
		results[i] = map[string]any(doc)
	}
	return results, nil
}
