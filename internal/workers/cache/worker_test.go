package cache

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/orchestrator"
	"github.com/antti/imagevault/internal/rendition"
)

type fakeStore struct {
	collections map[collections.ID]collections.Collection
	caches      map[collections.ID][]collections.CacheEmbedded
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
	panic("unused")
}
func (f *fakeStore) AtomicAddThumbnail(ctx context.Context, id collections.ID, thumb collections.ThumbnailEmbedded, replace bool) (collections.AddResult[collections.ThumbnailEmbedded], error) {
	panic("unused")
}
func (f *fakeStore) AtomicAddCache(ctx context.Context, id collections.ID, cache collections.CacheEmbedded, replace bool) (collections.AddResult[collections.CacheEmbedded], error) {
	for i, existing := range f.caches[id] {
		if existing.ImageID == cache.ImageID && existing.Width == cache.Width && existing.Height == cache.Height {
			if !replace {
				return collections.AddResult[collections.CacheEmbedded]{Added: false, Existing: existing}, nil
			}
			f.caches[id][i] = cache
			return collections.AddResult[collections.CacheEmbedded]{Added: true}, nil
		}
	}
	f.caches[id] = append(f.caches[id], cache)
	return collections.AddResult[collections.CacheEmbedded]{Added: true}, nil
}
func (f *fakeStore) UpdateStatistics(ctx context.Context, id collections.ID) error { return nil }
func (f *fakeStore) Query(ctx context.Context, filter collections.Filter, sort collections.Sort, skip, limit int) ([]collections.Collection, error) {
	panic("unused")
}

type fakePublisher struct {
	published []bus.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msg bus.Message) error {
	p.published = append(p.published, msg)
	return nil
}

func writeSamplePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	img.Set(5, 5, color.RGBA{0, 255, 0, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestHandleTask_GeneratesAndPersistsCacheRendition(t *testing.T) {
	dir := t.TempDir()
	writeSamplePNG(t, filepath.Join(dir, "a.png"))

	collID := collections.NewID()
	store := &fakeStore{
		collections: map[collections.ID]collections.Collection{
			collID: {ID: collID, Path: dir, Type: collections.TypeFolder},
		},
		caches: map[collections.ID][]collections.CacheEmbedded{},
	}

	files, err := rendition.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	pub := &fakePublisher{}
	w := New(store, files, pub, nil)

	payload, err := json.Marshal(orchestrator.RenditionPayload{
		CollectionID: collID.String(), CollectionPath: dir, CollectionType: collections.TypeFolder,
		ImageID: collections.NewID().String(), RelativePath: "a.png", Width: 12, Height: 12, Quality: 90,
	})
	require.NoError(t, err)

	require.NoError(t, w.HandleTask(context.Background(), payload))
	require.Len(t, store.caches[collID], 1)
	assert.Equal(t, 90, store.caches[collID][0].Quality)
}

func TestHandleTask_SkipsWhenCacheFileAlreadyExists(t *testing.T) {
	collID := collections.NewID()
	imageID := collections.NewID()

	files, err := rendition.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	existingPath, err := files.Save(context.Background(), rendition.KindCache, collID.String(), imageID.String(), 12, 12, "jpg", strings.NewReader("already-there"))
	require.NoError(t, err)

	store := &fakeStore{
		collections: map[collections.ID]collections.Collection{
			collID: {
				ID: collID, Path: t.TempDir(), Type: collections.TypeFolder,
				CacheImages: []collections.CacheEmbedded{{ImageID: imageID, Width: 12, Height: 12, CachePath: existingPath}},
			},
		},
		caches: map[collections.ID][]collections.CacheEmbedded{},
	}

	pub := &fakePublisher{}
	w := New(store, files, pub, nil)

	payload, err := json.Marshal(orchestrator.RenditionPayload{
		CollectionID: collID.String(), ImageID: imageID.String(), RelativePath: "a.png", Width: 12, Height: 12,
	})
	require.NoError(t, err)

	require.NoError(t, w.HandleTask(context.Background(), payload))
	assert.Empty(t, store.caches[collID])
}
