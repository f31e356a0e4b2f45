package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/source"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/store"
)

// AutoSessionID as a session id asks for a generated one.
const AutoSessionID = "auto"

// ErrBusy is returned by Service.TryBuild when another build is running.
var ErrBusy = errors.New("a build is already running")

// Overrides replace parts of the configuration for a single build. Nil and
// empty fields keep the configured value.
type Overrides struct {
	Name          string                   `json:"name,omitempty"`
	SessionID     string                   `json:"session_id,omitempty"`
	FilesLocation *string                  `json:"files_location,omitempty"`
	Git           *config.GitConfig        `json:"git,omitempty"`
	Confluence    *config.ConfluenceConfig `json:"confluence,omitempty"`
}

// Service wires an Orchestrator from configuration and builds one store at a time.
type Service struct {
	cfg      config.Config
	registry *extract.Registry
	embedder embedding.Embedder
	catalog  storage.Catalog
	orch     *Orchestrator
	logger   *zap.Logger
	mu       sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger   *zap.Logger
	embedder embedding.Embedder
	observe  func(string, Stage)
}

// WithServiceLogger sets the logger used by the service and everything it wires.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e embedding.Embedder) ServiceOption {
	return func(o *serviceOptions) { o.embedder = e }
}

// WithStageObserver forwards stage transitions to fn.
func WithStageObserver(fn func(runID string, stage Stage)) ServiceOption {
	return func(o *serviceOptions) { o.observe = fn }
}

// NewService validates cfg and opens the embedder and catalog. Close releases them.
func NewService(cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	so := serviceOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&so)
	}
	if so.logger == nil {
		so.logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    *cfg,
		logger: so.logger,
		registry: extract.NewRegistry(
			extract.WithLogger(so.logger.Named("extract")),
			extract.WithOCRCommand(cfg.Sources.OCRCommand),
		),
	}

	s.embedder = so.embedder
	if s.embedder == nil {
		e, err := embedding.NewEmbedder(cfg.Embedding, so.logger.Named("embedding"))
		if err != nil {
			return nil, err
		}
		s.embedder = e
	}

	if cfg.VectorStore.CatalogEnabled() {
		c, err := storage.NewSQLiteCatalog(cfg.VectorStore.CatalogFile())
		if err != nil {
			_ = s.embedder.Close()
			return nil, err
		}
		s.catalog = c
	}

	builder := store.NewBuilder(cfg.VectorStore.Path,
		store.WithIndexType(cfg.VectorStore.IndexType),
		store.WithLogger(so.logger.Named("store")))
	orchOpts := []Option{WithLogger(so.logger.Named("pipeline")), WithObserver(so.observe)}
	if s.catalog != nil {
		orchOpts = append(orchOpts, WithCatalog(s.catalog))
	}
	s.orch = New(s.embedder, builder, orchOpts...)
	return s, nil
}

// Config returns the base configuration.
func (s *Service) Config() config.Config { return s.cfg }

// Catalog returns the store catalog, nil when disabled.
func (s *Service) Catalog() storage.Catalog { return s.catalog }

// Registry returns the parser registry.
func (s *Service) Registry() *extract.Registry { return s.registry }

// Build runs one pipeline with ov applied, waiting for any running build first.
func (s *Service) Build(ctx context.Context, ov Overrides) (*Result, error) {
	req, err := s.request(ov)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orch.Run(ctx, req)
}

// TryBuild is Build but returns ErrBusy instead of waiting.
func (s *Service) TryBuild(ctx context.Context, ov Overrides) (*Result, error) {
	req, err := s.request(ov)
	if err != nil {
		return nil, err
	}
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.orch.Run(ctx, req)
}

// request resolves ov against the base configuration and builds the sources.
// Invalid overrides are reported as *config.ConfigurationError.
func (s *Service) request(ov Overrides) (Request, error) {
	cfg := s.cfg
	if ov.Name != "" {
		cfg.VectorStore.Name = ov.Name
	}
	if ov.FilesLocation != nil {
		cfg.Sources.FilesLocation = *ov.FilesLocation
	}
	git, wiki := cfg.Sources.Git, cfg.Sources.Confluence
	if ov.Git != nil {
		git = ov.Git
	}
	if ov.Confluence != nil {
		wiki = ov.Confluence
	}
	// Copies, so defaults and env credentials never leak into the base config.
	if git != nil {
		g := *git
		cfg.Sources.Git = &g
	}
	if wiki != nil {
		c := *wiki
		cfg.Sources.Confluence = &c
	}
	config.ApplyDefaults(&cfg)
	config.ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Request{}, err
	}

	sessionID := cfg.SessionID
	if ov.SessionID != "" {
		sessionID = ov.SessionID
	}
	sessionID = ResolveSessionID(sessionID)

	sources, err := source.FromConfig(cfg.Sources, s.registry, source.WithLogger(s.logger.Named("source")))
	if err != nil {
		return Request{}, &config.ConfigurationError{Field: "sources", Reason: err.Error()}
	}
	return Request{Name: cfg.VectorStore.Name, SessionID: sessionID, Sources: sources}, nil
}

// ResolveSessionID returns a fresh uuid for "auto" and id unchanged otherwise.
func ResolveSessionID(id string) string {
	if strings.EqualFold(strings.TrimSpace(id), AutoSessionID) {
		return uuid.New().String()
	}
	return id
}

// Close releases the embedder and catalog.
func (s *Service) Close() error {
	var errs []error
	if err := s.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
