// Package pipeline runs one build: collect documents from sources, embed their
// texts and persist a new vector store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/source"
	"github.com/hyperjump/kura/internal/storage"
)

// Stage is a pipeline state. A run moves forward through
// Collecting, Extracting, Embedding, Indexing and ends in Done or Failed.
type Stage string

const (
	StageCollecting Stage = "collecting"
	StageExtracting Stage = "extracting"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// StoreBuilder persists documents and their vectors; *store.Builder implements it.
type StoreBuilder interface {
	Build(ctx context.Context, name string, docs []models.Document, vectors [][]float32) (string, error)
	Path(name string) string
	IndexType() string
}

// Request describes one run.
type Request struct {
	Name      string
	SessionID string
	Sources   []source.Source
}

// Result describes the store a successful run produced.
type Result struct {
	Name          string         `json:"name"`
	RequestedName string         `json:"requested_name"`
	Path          string         `json:"path"`
	Documents     int            `json:"documents"`
	Dimensions    int            `json:"dimensions"`
	IndexType     string         `json:"index_type"`
	SessionID     string         `json:"session_id,omitempty"`
	RunID         string         `json:"run_id"`
	Sources       map[string]int `json:"sources"`
	Duration      time.Duration  `json:"duration_ns"`
}

// Orchestrator drives runs. It holds no per-run state and is safe to reuse.
type Orchestrator struct {
	embedder embedding.Embedder
	builder  StoreBuilder
	catalog  storage.Catalog
	logger   *zap.Logger
	observe  func(runID string, stage Stage)
	newRunID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCatalog records every built store in c.
func WithCatalog(c storage.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithObserver calls fn on every stage transition.
func WithObserver(fn func(runID string, stage Stage)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// New returns an orchestrator embedding with e and persisting with b.
func New(e embedding.Embedder, b StoreBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder: e,
		builder:  b,
		logger:   zap.NewNop(),
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run tracks the state of one Run call.
type run struct {
	id     string
	stage  Stage
	o      *Orchestrator
	logger *zap.Logger
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.logger.Debug("pipeline stage", zap.String("stage", string(stage)))
	if r.o.observe != nil {
		r.o.observe(r.id, stage)
	}
}

// fail moves the run to Failed and returns err wrapped with the stage it failed in.
func (r *run) fail(err error) error {
	failed := r.stage
	r.enter(StageFailed)
	return &StageError{Stage: failed, Err: err}
}

// Run executes one build. Errors are *StageError; errors.As reaches the cause.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	r := &run{id: o.newRunID(), o: o}
	r.logger = o.logger.With(zap.String("run_id", r.id), zap.String("store", req.Name))

	r.enter(StageCollecting)
	docs, counts, err := o.collect(ctx, r.logger, req.Sources)
	if err != nil {
		return nil, r.fail(err)
	}
	if len(docs) == 0 {
		return nil, r.fail(ErrNoDocuments)
	}
	if req.SessionID != "" {
		for i := range docs {
			docs[i].Set(models.MetaSessionID, req.SessionID)
		}
	}

	r.enter(StageExtracting)
	texts := models.Texts(docs)

	r.enter(StageEmbedding)
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageIndexing)
	name, err := o.builder.Build(ctx, req.Name, docs, vectors)
	if err != nil {
		return nil, r.fail(err)
	}

	res := &Result{
		Name:          name,
		RequestedName: req.Name,
		Path:          o.builder.Path(name),
		Documents:     len(docs),
		Dimensions:    len(vectors[0]),
		IndexType:     o.builder.IndexType(),
		SessionID:     req.SessionID,
		RunID:         r.id,
		Sources:       counts,
		Duration:      time.Since(started),
	}
	o.record(ctx, r.logger, res)
	r.enter(StageDone)
	r.logger.Info("pipeline finished",
		zap.String("name", res.Name),
		zap.String("path", res.Path),
		zap.Int("documents", res.Documents),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// collect runs the sources in order. A failing source contributes no documents;
// only cancellation stops collection.
func (o *Orchestrator) collect(ctx context.Context, logger *zap.Logger, sources []source.Source) ([]models.Document, map[string]int, error) {
	var docs []models.Document
	counts := make(map[string]int, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		got, err := src.Process(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			logger.Error("source failed", zap.String("source", src.Name()), zap.Error(err))
			counts[src.Name()] = 0
			continue
		}
		logger.Info("collected documents", zap.String("source", src.Name()), zap.Int("documents", len(got)))
		counts[src.Name()] = len(got)
		docs = append(docs, got...)
	}
	return docs, counts, nil
}

// record writes res to the catalog. The store already exists on disk, so failures are only logged.
func (o *Orchestrator) record(ctx context.Context, logger *zap.Logger, res *Result) {
	if o.catalog == nil {
		return
	}
	size, err := storage.DiskUsageBytes(res.Path)
	if err != nil {
		logger.Warn("failed to measure store size", zap.String("path", res.Path), zap.Error(err))
	}
	info := &models.StoreInfo{
		Name:          res.Name,
		RequestedName: res.RequestedName,
		Path:          res.Path,
		Documents:     res.Documents,
		Dimensions:    res.Dimensions,
		IndexType:     res.IndexType,
		SessionID:     res.SessionID,
		RunID:         res.RunID,
		SizeBytes:     size,
	}
	// The build succeeded; a cancelled request must not drop the record.
	if err := o.catalog.RecordStore(context.WithoutCancel(ctx), info); err != nil {
		logger.Warn("failed to record store in catalog", zap.String("name", res.Name), zap.Error(err))
	}
}

// IsCancelled reports whether err stems from context cancellation or deadline.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
