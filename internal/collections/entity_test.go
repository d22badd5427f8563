package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecomputeStatistics(t *testing.T) {
	c := Collection{
		Images: []ImageEmbedded{
			{ID: NewID(), Filename: "a.jpg", RelativePath: "a.jpg", FileSize: 100},
			{ID: NewID(), Filename: "b.jpg", RelativePath: "sub/b.jpg", FileSize: 250},
		},
	}
	c.RecomputeStatistics()

	assert.Equal(t, 2, c.Statistics.TotalItems)
	assert.Equal(t, int64(350), c.Statistics.TotalSize)
}

func TestRecomputeStatistics_Empty(t *testing.T) {
	var c Collection
	c.RecomputeStatistics()
	assert.Equal(t, 0, c.Statistics.TotalItems)
	assert.Equal(t, int64(0), c.Statistics.TotalSize)
}

func TestFindImage_KeyedOnFilenameAndRelativePath(t *testing.T) {
	img := ImageEmbedded{ID: NewID(), Filename: "a.jpg", RelativePath: "sub/a.jpg"}
	c := Collection{Images: []ImageEmbedded{img}}

	found, ok := c.FindImage("a.jpg", "sub/a.jpg")
	assert.True(t, ok)
	assert.Equal(t, img.ID, found.ID)

	// Same filename under a different relative path is a different image.
	_, ok = c.FindImage("a.jpg", "other/a.jpg")
	assert.False(t, ok)
}

func TestFindThumbnail_KeyedOnImageAndSize(t *testing.T) {
	imageID := NewID()
	c := Collection{Thumbnails: []ThumbnailEmbedded{
		{ImageID: imageID, Width: 200, Height: 200, ThumbnailPath: "thumbnails/x/y_200x200.jpg"},
	}}

	found, ok := c.FindThumbnail(imageID, 200, 200)
	assert.True(t, ok)
	assert.Equal(t, "thumbnails/x/y_200x200.jpg", found.ThumbnailPath)

	_, ok = c.FindThumbnail(imageID, 400, 400)
	assert.False(t, ok)
	_, ok = c.FindThumbnail(NewID(), 200, 200)
	assert.False(t, ok)
}

func TestFindCache_KeyedOnImageAndSize(t *testing.T) {
	imageID := NewID()
	c := Collection{CacheImages: []CacheEmbedded{
		{ImageID: imageID, Width: 1600, Height: 1600, CachePath: "cache/x/y_1600x1600.jpg", Quality: 85},
	}}

	found, ok := c.FindCache(imageID, 1600, 1600)
	assert.True(t, ok)
	assert.Equal(t, 85, found.Quality)

	_, ok = c.FindCache(imageID, 200, 200)
	assert.False(t, ok)
}
