package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/source"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/store"
	"github.com/hyperjump/kura/internal/vector"
)

type fakeSource struct {
	name  string
	docs  []models.Document
	err   error
	calls int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Process(ctx context.Context) ([]models.Document, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = models.NewDocument(d.Text, d.Metadata)
	}
	return out, nil
}

func srcs(fakes ...*fakeSource) []source.Source {
	out := make([]source.Source, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func docs(texts ...string) []models.Document {
	out := make([]models.Document, len(texts))
	for i, t := range texts {
		out[i] = models.NewDocument(t, map[string]any{"origin": t})
	}
	return out
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []Stage
}

func (r *stageRecorder) observe(_ string, s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func readMetadata(t *testing.T, dir string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, store.MetadataFile))
	require.NoError(t, err)
	var md []map[string]any
	require.NoError(t, json.Unmarshal(raw, &md))
	return md
}

func TestRun_BuildsStore(t *testing.T) {
	base := t.TempDir()
	emb := embedding.NewMockEmbedder(8)
	rec := &stageRecorder{}
	o := New(emb, store.NewBuilder(base), WithObserver(rec.observe))

	res, err := o.Run(context.Background(), Request{
		Name:      "kb",
		SessionID: "session-42",
		Sources:   srcs(&fakeSource{name: "filesystem", docs: docs("alpha", "beta", "gamma")}),
	})
	require.NoError(t, err)

	assert.Equal(t, "kb", res.Name)
	assert.Equal(t, "kb", res.RequestedName)
	assert.Equal(t, filepath.Join(base, "kb"), res.Path)
	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 8, res.Dimensions)
	assert.Equal(t, "flat", res.IndexType)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]int{"filesystem": 3}, res.Sources)
	assert.Equal(t, 1, emb.Calls())

	assert.Equal(t, []Stage{StageCollecting, StageExtracting, StageEmbedding, StageIndexing, StageDone}, rec.stages)

	entries, err := os.ReadDir(res.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	md := readMetadata(t, res.Path)
	require.Len(t, md, 3)
	for i, m := range md {
		assert.Equal(t, "session-42", m[models.MetaSessionID])
		assert.EqualValues(t, i, m[models.MetaID])
	}
	assert.Equal(t, "beta", md[1][models.MetaText])

	idx, err := vector.ReadFile(filepath.Join(res.Path, store.IndexFile))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 8, idx.Dimensions())
}

func TestRun_SourceOrderAndFailures(t *testing.T) {
	fs := &fakeSource{name: "filesystem", docs: docs("f1", "f2")}
	repo := &fakeSource{name: "repository", err: errors.New("clone failed")}
	wiki := &fakeSource{name: "confluence", docs: docs("w1")}

	o := New(embedding.NewMockEmbedder(4), store.NewBuilder(t.TempDir()))
	res, err := o.Run(context.Background(), Request{Name: "kb", Sources: srcs(fs, repo, wiki)})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, map[string]int{"filesystem": 2, "repository": 0, "confluence": 1}, res.Sources)

	md := readMetadata(t, res.Path)
	var texts []string
	for _, m := range md {
		texts = append(texts, m[models.MetaText].(string))
		_, stamped := m[models.MetaSessionID]
		assert.False(t, stamped, "no session id configured")
	}
	assert.Equal(t, []string{"f1", "f2", "w1"}, texts)
}

func TestRun_NoDocuments(t *testing.T) {
	base := t.TempDir()
	emb := embedding.NewMockEmbedder(4)
	rec := &stageRecorder{}
	o := New(emb, store.NewBuilder(base), WithObserver(rec.observe))

	_, err := o.Run(context.Background(), Request{
		Name:    "kb",
		Sources: srcs(&fakeSource{name: "filesystem"}, &fakeSource{name: "repository", err: errors.New("boom")}),
	})
	require.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, StageCollecting, FailedStage(err))
	assert.Equal(t, 0, emb.Calls(), "embedder must not be called")
	assert.Equal(t, []Stage{StageCollecting, StageFailed}, rec.stages)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_NoSources(t *testing.T) {
	o := New(embedding.NewMockEmbedder(4), store.NewBuilder(t.TempDir()))
	_, err := o.Run(context.Background(), Request{Name: "kb"})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestRun_CancelledDuringCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &cancellingSource{cancel: cancel}
	second := &fakeSource{name: "confluence", docs: docs("w")}

	o := New(embedding.NewMockEmbedder(4), store.NewBuilder(t.TempDir()))
	_, err := o.Run(ctx, Request{Name: "kb", Sources: []source.Source{first, second}})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, StageCollecting, FailedStage(err))
	assert.Equal(t, 0, second.calls)
}

type cancellingSource struct {
	cancel context.CancelFunc
}

func (s *cancellingSource) Name() string { return "filesystem" }

func (s *cancellingSource) Process(ctx context.Context) ([]models.Document, error) {
	s.cancel()
	return nil, ctx.Err()
}

// shortService answers every batch with a single vector.
func shortService(t *testing.T) string {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[[0.1,0.2,0.3]]}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL + "/v1/embeddings"
}

func TestRun_ResponseCountMismatch(t *testing.T) {
	base := t.TempDir()
	emb, err := embedding.NewHTTPEmbedder(shortService(t), 2)
	require.NoError(t, err)
	rec := &stageRecorder{}
	o := New(emb, store.NewBuilder(base), WithObserver(rec.observe))

	_, err = o.Run(context.Background(), Request{
		Name:    "kb",
		Sources: srcs(&fakeSource{name: "filesystem", docs: docs("one", "two")}),
	})
	var countErr *embedding.ResponseCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 2, countErr.Expected)
	assert.Equal(t, 1, countErr.Got)
	assert.Equal(t, StageEmbedding, FailedStage(err))
	assert.NotContains(t, rec.stages, StageIndexing)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "no store directory may be created")
}

type shortEmbedder struct{ embedding.Embedder }

func (shortEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func TestRun_IndexingErrorsCarryStage(t *testing.T) {
	o := New(shortEmbedder{}, store.NewBuilder(t.TempDir()))
	_, err := o.Run(context.Background(), Request{
		Name:    "kb",
		Sources: srcs(&fakeSource{name: "filesystem", docs: docs("a", "b")}),
	})
	var card *store.CardinalityError
	require.ErrorAs(t, err, &card)
	assert.Equal(t, StageIndexing, FailedStage(err))
}

func TestRun_RecordsCatalog(t *testing.T) {
	base := t.TempDir()
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(base, "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()

	o := New(embedding.NewMockEmbedder(4), store.NewBuilder(base), WithCatalog(catalog))
	req := Request{Name: "kb", SessionID: "s", Sources: srcs(&fakeSource{name: "filesystem", docs: docs("a")})}
	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)

	n, err := catalog.CountStores(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	info, err := catalog.GetStore(context.Background(), second.Name)
	require.NoError(t, err)
	assert.Equal(t, "kb", info.RequestedName)
	assert.Equal(t, second.Path, info.Path)
	assert.Equal(t, second.RunID, info.RunID)
	assert.Equal(t, "s", info.SessionID)
	assert.Positive(t, info.SizeBytes)
}

type failingCatalog struct{ storage.Catalog }

func (failingCatalog) RecordStore(context.Context, *models.StoreInfo) error {
	return errors.New("disk full")
}

func TestRun_CatalogFailureIsNotFatal(t *testing.T) {
	o := New(embedding.NewMockEmbedder(4), store.NewBuilder(t.TempDir()), WithCatalog(failingCatalog{}))
	res, err := o.Run(context.Background(), Request{Name: "kb", Sources: srcs(&fakeSource{name: "filesystem", docs: docs("a")})})
	require.NoError(t, err)
	assert.DirExists(t, res.Path)
}

func TestStageError(t *testing.T) {
	cause := &store.CardinalityError{Documents: 2, Vectors: 1}
	err := error(&StageError{Stage: StageIndexing, Err: cause})
	assert.Equal(t, "indexing stage failed: "+cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Stage(""), FailedStage(errors.New("plain")))
}
