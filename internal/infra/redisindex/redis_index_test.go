package redisindex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/antti/imagevault/internal/collections"
)

func newTestIndex(t *testing.T) *RedisIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func sampleCollections(libraryID collections.ID) []collections.Collection {
	now := time.Unix(1700000000, 0)
	return []collections.Collection{
		{
			ID: collections.NewID(), Name: "Beach Trip", Path: "/a", Type: collections.TypeFolder,
			LibraryID: &libraryID, CreatedAt: now, UpdatedAt: now,
			Images: []collections.ImageEmbedded{{ID: collections.NewID()}},
		},
		{
			ID: collections.NewID(), Name: "Mountain Hike", Path: "/b", Type: collections.TypeFolder,
			LibraryID: &libraryID, CreatedAt: now.Add(time.Hour), UpdatedAt: now.Add(time.Hour),
			Images: []collections.ImageEmbedded{{ID: collections.NewID()}, {ID: collections.NewID()}},
		},
		{
			ID: collections.NewID(), Name: "City Lights", Path: "/c", Type: collections.TypeZip,
			CreatedAt: now.Add(2 * time.Hour), UpdatedAt: now.Add(2 * time.Hour),
		},
	}
}

func TestRebuild_PopulatesPrimarySetAndSummaries(t *testing.T) {
	idx := newTestIndex(t)
	libID := collections.NewID()
	colls := sampleCollections(libID)

	stats, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	byLib, err := idx.CountByLibrary(context.Background(), libID)
	require.NoError(t, err)
	require.EqualValues(t, 2, byLib)

	byType, err := idx.CountByType(context.Background(), collections.TypeZip)
	require.NoError(t, err)
	require.EqualValues(t, 1, byType)
}

func TestGetPage_OrdersByCreatedAtAscending(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	page, err := idx.GetPage(context.Background(), 1, 10, collections.SortCreatedAt, collections.Ascending)
	require.NoError(t, err)
	require.Len(t, page.Summaries, 3)
	require.Equal(t, "Beach Trip", page.Summaries[0].Name)
	require.Equal(t, "City Lights", page.Summaries[2].Name)
}

func TestGetPage_DescendingReversesOrder(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	page, err := idx.GetPage(context.Background(), 1, 10, collections.SortCreatedAt, collections.Descending)
	require.NoError(t, err)
	require.Len(t, page.Summaries, 3)
	require.Equal(t, "City Lights", page.Summaries[0].Name)
	require.Equal(t, "Beach Trip", page.Summaries[2].Name)
}

func TestGetNavigation_ReturnsNeighborsAndPosition(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	mid := colls[1]
	nav, err := idx.GetNavigation(context.Background(), mid.ID, collections.SortCreatedAt, collections.Ascending)
	require.NoError(t, err)
	require.Equal(t, 2, nav.Position)
	require.Equal(t, 3, nav.Total)
	require.NotNil(t, nav.Prev)
	require.NotNil(t, nav.Next)
	require.Equal(t, "Beach Trip", nav.Prev.Name)
	require.Equal(t, "City Lights", nav.Next.Name)
}

func TestGetSiblings_PageOneFindsContainingPage(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	last := colls[2]
	siblings, err := idx.GetSiblings(context.Background(), last.ID, 1, 2, collections.SortCreatedAt, collections.Ascending)
	require.NoError(t, err)
	require.Equal(t, 2, siblings.Page)
	require.Equal(t, 3, siblings.Position)
	require.Len(t, siblings.Summaries, 1)
	require.Equal(t, "City Lights", siblings.Summaries[0].Name)
}

func TestUpsert_RemovesStaleLibraryMembership(t *testing.T) {
	idx := newTestIndex(t)
	lib1 := collections.NewID()
	lib2 := collections.NewID()
	c := collections.Collection{
		ID: collections.NewID(), Name: "Reshuffled", Path: "/x", Type: collections.TypeFolder,
		LibraryID: &lib1, CreatedAt: time.Unix(1700000000, 0), UpdatedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, idx.Upsert(context.Background(), c))

	n1, err := idx.CountByLibrary(context.Background(), lib1)
	require.NoError(t, err)
	require.EqualValues(t, 1, n1)

	c.LibraryID = &lib2
	require.NoError(t, idx.Upsert(context.Background(), c))

	n1After, err := idx.CountByLibrary(context.Background(), lib1)
	require.NoError(t, err)
	require.EqualValues(t, 0, n1After)

	n2, err := idx.CountByLibrary(context.Background(), lib2)
	require.NoError(t, err)
	require.EqualValues(t, 1, n2)
}

func TestRemove_DeletesSummaryAndMembership(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	require.NoError(t, idx.Remove(context.Background(), colls[0].ID))

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = idx.getSummary(context.Background(), colls[0].ID.String())
	require.ErrorIs(t, err, redis.Nil)

	_, found, err := idx.GetCachedThumbnail(context.Background(), colls[0].ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestThumbnailCache_SetAndGetRoundTrips(t *testing.T) {
	idx := newTestIndex(t)
	id := collections.NewID()

	require.NoError(t, idx.SetCachedThumbnail(context.Background(), id, []byte("jpegbytes"), time.Hour))

	blob, found, err := idx.GetCachedThumbnail(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("jpegbytes"), blob)
}

func TestThumbnailCache_SurvivesRebuild(t *testing.T) {
	idx := newTestIndex(t)
	colls := sampleCollections(collections.NewID())
	require.NoError(t, idx.SetCachedThumbnail(context.Background(), colls[0].ID, []byte("cached"), time.Hour))

	_, err := idx.Rebuild(context.Background(), colls)
	require.NoError(t, err)

	blob, found, err := idx.GetCachedThumbnail(context.Background(), colls[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("cached"), blob)
}

func TestBatchCacheThumbnails_StoresAll(t *testing.T) {
	idx := newTestIndex(t)
	id1, id2 := collections.NewID(), collections.NewID()

	err := idx.BatchCacheThumbnails(context.Background(), map[collections.ID][]byte{
		id1: []byte("one"),
		id2: []byte("two"),
	}, time.Hour)
	require.NoError(t, err)

	b1, found1, err := idx.GetCachedThumbnail(context.Background(), id1)
	require.NoError(t, err)
	require.True(t, found1)
	require.Equal(t, []byte("one"), b1)

	b2, found2, err := idx.GetCachedThumbnail(context.Background(), id2)
	require.NoError(t, err)
	require.True(t, found2)
	require.Equal(t, []byte("two"), b2)
}
