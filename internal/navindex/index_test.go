package navindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/antti/imagevault/internal/collections"
)

func TestSummaryFrom(t *testing.T) {
	libID := collections.NewID()
	firstImage := collections.ImageEmbedded{ID: collections.NewID(), Filename: "a.jpg", RelativePath: "a.jpg", FileSize: 10}
	now := time.Now().UTC()

	c := collections.Collection{
		ID:        collections.NewID(),
		Name:      "Holiday 2025",
		Path:      "/media/holiday-2025.zip",
		Type:      collections.TypeZip,
		LibraryID: &libID,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
		Statistics: collections.Statistics{
			TotalItems: 2,
			TotalSize:  30,
		},
		Images: []collections.ImageEmbedded{
			firstImage,
			{ID: collections.NewID(), Filename: "b.jpg", RelativePath: "b.jpg", FileSize: 20},
		},
		Thumbnails: []collections.ThumbnailEmbedded{
			{ImageID: firstImage.ID, Width: 200, Height: 200},
		},
	}

	s := SummaryFrom(c)

	assert.Equal(t, c.ID.String(), s.ID)
	assert.Equal(t, "Holiday 2025", s.Name)
	assert.Equal(t, "/media/holiday-2025.zip", s.Path)
	assert.Equal(t, "Zip", s.Type)
	assert.Equal(t, libID.String(), s.LibraryID)
	assert.Equal(t, firstImage.ID.String(), s.FirstImageID)
	assert.Equal(t, 2, s.ImageCount)
	assert.Equal(t, 1, s.ThumbnailCount)
	assert.Equal(t, 0, s.CacheCount)
	assert.Equal(t, int64(30), s.TotalSize)
	assert.Equal(t, c.CreatedAt, s.CreatedAt)
	assert.Equal(t, c.UpdatedAt, s.UpdatedAt)
}

func TestSummaryFrom_NoLibraryNoImages(t *testing.T) {
	c := collections.Collection{
		ID:   collections.NewID(),
		Name: "Empty",
		Type: collections.TypeFolder,
	}

	s := SummaryFrom(c)
	assert.Empty(t, s.LibraryID)
	assert.Empty(t, s.FirstImageID)
	assert.Equal(t, 0, s.ImageCount)
}

func TestSortFields_CoverAllFive(t *testing.T) {
	fields := SortFields()
	assert.Len(t, fields, 5)
	assert.Contains(t, fields, collections.SortUpdatedAt)
	assert.Contains(t, fields, collections.SortCreatedAt)
	assert.Contains(t, fields, collections.SortName)
	assert.Contains(t, fields, collections.SortImageCount)
	assert.Contains(t, fields, collections.SortTotalSize)
}
