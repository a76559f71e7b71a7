package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/vector"
)

// fakeRepo is a minimal in-memory vector.Repository double, just enough to
// exercise SearchService's collection lifecycle without a real backend.
type fakeRepo struct {
	collections map[string]vector.CollectionInfo
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{collections: make(map[string]vector.CollectionInfo)}
}

func (f *fakeRepo) CreateCollection(_ context.Context, id string, dimension int) error {
	f.collections[id] = vector.CollectionInfo{ID: id, Dimension: dimension, CreatedAt: time.Now()}
	return nil
}

func (f *fakeRepo) DropCollection(_ context.Context, id string) error {
	delete(f.collections, id)
	return nil
}

func (f *fakeRepo) ListCollections(_ context.Context) ([]vector.CollectionInfo, error) {
	out := make([]vector.CollectionInfo, 0, len(f.collections))
	for _, c := range f.collections {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) Upsert(context.Context, []vector.Point) error           { return nil }
func (f *fakeRepo) DeleteByDocument(context.Context, string, string) error { return nil }
func (f *fakeRepo) Search(context.Context, string, []float32, int, vector.Filter) ([]vector.Match, error) {
	return nil, nil
}
func (f *fakeRepo) ListDocuments(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeRepo) GetDocumentChunks(context.Context, string, string) ([]vector.Point, error) {
	return nil, nil
}
func (f *fakeRepo) Health(context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

func newTestSearchService() (*SearchService, *fakeRepo) {
	repo := newFakeRepo()
	return &SearchService{Repo: repo, DefaultCollection: "docs"}, repo
}

func TestCreateCollectionIsIdempotentForSameDimension(t *testing.T) {
	svc, _ := newTestSearchService()
	ctx := context.Background()

	require.NoError(t, svc.CreateCollection(ctx, "docs", 384))
	require.NoError(t, svc.CreateCollection(ctx, "docs", 384))

	cols, err := svc.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, 384, cols[0].Dimension)
}

func TestCreateCollectionConflictsOnDifferentDimension(t *testing.T) {
	svc, _ := newTestSearchService()
	ctx := context.Background()

	require.NoError(t, svc.CreateCollection(ctx, "docs", 384))

	err := svc.CreateCollection(ctx, "docs", 768)
	require.Error(t, err)
	ce, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindConflict, ce.Kind)
}

func TestCreateCollectionRejectsBlankName(t *testing.T) {
	svc, _ := newTestSearchService()
	err := svc.CreateCollection(context.Background(), "  ", 384)
	require.Error(t, err)
	ce, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindValidation, ce.Kind)
}

func TestGetCollectionNotFound(t *testing.T) {
	svc, _ := newTestSearchService()
	_, err := svc.GetCollection(context.Background(), "missing")
	require.Error(t, err)
	ce, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindNotFound, ce.Kind)
}
