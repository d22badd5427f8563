package orchestrator

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/collections"
)

type fakeStore struct {
	collections map[collections.ID]collections.Collection
	images      map[collections.ID][]collections.ImageEmbedded
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: map[collections.ID]collections.Collection{},
		images:      map[collections.ID][]collections.ImageEmbedded{},
	}
}

func (f *fakeStore) Create(ctx context.Context, spec collections.CreateSpec, overwrite bool) (collections.ID, error) {
	panic("unused")
}

func (f *fakeStore) Get(ctx context.Context, id collections.ID) (collections.Collection, bool, error) {
	c, ok := f.collections[id]
	return c, ok, nil
}

func (f *fakeStore) Update(ctx context.Context, id collections.ID, patch collections.Patch) error {
	panic("unused")
}

func (f *fakeStore) SoftDelete(ctx context.Context, id collections.ID) error { panic("unused") }

func (f *fakeStore) AtomicAddImage(ctx context.Context, id collections.ID, image collections.ImageEmbedded) (collections.AddResult[collections.ImageEmbedded], error) {
	for _, existing := range f.images[id] {
		if existing.Filename == image.Filename && existing.RelativePath == image.RelativePath {
			return collections.AddResult[collections.ImageEmbedded]{Added: false, Existing: existing}, nil
		}
	}
	if image.ID.IsZero() {
		image.ID = collections.NewID()
	}
	f.images[id] = append(f.images[id], image)
	return collections.AddResult[collections.ImageEmbedded]{Added: true}, nil
}

func (f *fakeStore) AtomicAddThumbnail(ctx context.Context, id collections.ID, thumb collections.ThumbnailEmbedded, replace bool) (collections.AddResult[collections.ThumbnailEmbedded], error) {
	panic("unused")
}

func (f *fakeStore) AtomicAddCache(ctx context.Context, id collections.ID, cache collections.CacheEmbedded, replace bool) (collections.AddResult[collections.CacheEmbedded], error) {
	panic("unused")
}

func (f *fakeStore) UpdateStatistics(ctx context.Context, id collections.ID) error { return nil }

func (f *fakeStore) Query(ctx context.Context, filter collections.Filter, sort collections.Sort, skip, limit int) ([]collections.Collection, error) {
	var out []collections.Collection
	for _, c := range f.collections {
		if filter.LibraryID != nil && (c.LibraryID == nil || *c.LibraryID != *filter.LibraryID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type fakePublisher struct {
	published []bus.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msg bus.Message) error {
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, msgs []bus.Message) error {
	p.published = append(p.published, msgs...)
	return nil
}

func writeSamplePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRun_ScansFolderAndPublishesImageProcessing(t *testing.T) {
	dir := t.TempDir()
	writeSamplePNG(t, filepath.Join(dir, "a.png"))

	store := newFakeStore()
	collID := collections.NewID()
	store.collections[collID] = collections.Collection{
		ID:   collID,
		Path: dir,
		Type: collections.TypeFolder,
	}

	pub := &fakePublisher{}
	orch := New(store, pub, nil, RenditionPlan{ThumbnailWidth: 200, ThumbnailHeight: 200, CacheWidth: 1600, CacheHeight: 1600, Quality: 85})

	summary, outcomes, err := orch.Run(context.Background(), ScanRequest{CollectionID: &collID})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ImagesFound)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Skipped)
	require.Len(t, pub.published, 1)
	assert.Equal(t, bus.TypeImageProcessing, pub.published[0].Type)
}

func TestRun_SkipsExistingCollectionWithoutOverwrite(t *testing.T) {
	store := newFakeStore()
	collID := collections.NewID()
	store.collections[collID] = collections.Collection{
		ID: collID, Path: t.TempDir(), Type: collections.TypeFolder,
		Images: []collections.ImageEmbedded{{ID: collections.NewID(), Filename: "x.png"}},
	}

	pub := &fakePublisher{}
	orch := New(store, pub, nil, RenditionPlan{})

	summary, outcomes, err := orch.Run(context.Background(), ScanRequest{CollectionID: &collID, OverwriteExisting: false})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ImagesSkipped)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Empty(t, pub.published)
}

func TestHandleImageProcessing_AddsImageAndPublishesRenditions(t *testing.T) {
	store := newFakeStore()
	collID := collections.NewID()
	store.collections[collID] = collections.Collection{ID: collID, Path: "/data/album", Type: collections.TypeFolder}

	pub := &fakePublisher{}
	orch := New(store, pub, nil, RenditionPlan{ThumbnailWidth: 200, ThumbnailHeight: 200, CacheWidth: 1600, CacheHeight: 1600, Quality: 85})

	payload, err := json.Marshal(ImageProcessingPayload{
		CollectionID:   collID.String(),
		CollectionPath: "/data/album",
		CollectionType: collections.TypeFolder,
		Filename:       "a.png",
		RelativePath:   "a.png",
		Width:          10,
		Height:         10,
		Format:         "png",
	})
	require.NoError(t, err)

	require.NoError(t, orch.HandleImageProcessing(context.Background(), payload))
	require.Len(t, store.images[collID], 1)
	require.Len(t, pub.published, 2)
	assert.Equal(t, bus.TypeThumbnailGeneration, pub.published[0].Type)
	assert.Equal(t, bus.TypeCacheGeneration, pub.published[1].Type)
}

func TestHandleImageProcessing_DuplicateIsNoOp(t *testing.T) {
	store := newFakeStore()
	collID := collections.NewID()
	store.collections[collID] = collections.Collection{ID: collID, Path: "/data/album", Type: collections.TypeFolder}
	store.images[collID] = []collections.ImageEmbedded{{ID: collections.NewID(), Filename: "a.png", RelativePath: "a.png", CreatedAt: time.Now()}}

	pub := &fakePublisher{}
	orch := New(store, pub, nil, RenditionPlan{})

	payload, err := json.Marshal(ImageProcessingPayload{
		CollectionID: collID.String(), Filename: "a.png", RelativePath: "a.png",
	})
	require.NoError(t, err)

	require.NoError(t, orch.HandleImageProcessing(context.Background(), payload))
	assert.Len(t, store.images[collID], 1)
	assert.Empty(t, pub.published)
}
