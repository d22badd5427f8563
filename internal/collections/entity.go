// Package collections defines the Collection aggregate: a folder or
// archive materialized as a document owning its embedded images,
// thumbnails, and cache renditions.
package collections

import "time"

// Type is the on-disk shape a Collection was materialized from.
type Type string

const (
	TypeFolder    Type = "Folder"
	TypeZip       Type = "Zip"
	TypeSevenZip  Type = "SevenZip"
	TypeRar       Type = "Rar"
	TypeTar       Type = "Tar"
)

// ImageMetadata is best-effort, per-image enrichment. Missing fields are
// left at their zero value rather than failing extraction.
type ImageMetadata struct {
	Quality      int               `json:"quality,omitempty"`
	ColorSpace   string            `json:"colorSpace,omitempty"`
	Compression  string            `json:"compression,omitempty"`
	CreatedDate  *time.Time        `json:"createdDate,omitempty"`
	ModifiedDate *time.Time        `json:"modifiedDate,omitempty"`
	Camera       string            `json:"camera,omitempty"`
	Software     string            `json:"software,omitempty"`
	Additional   map[string]string `json:"additional,omitempty"`
}

// ImageEmbedded is one entry of Collection.Images.
type ImageEmbedded struct {
	ID           ID             `json:"id"`
	Filename     string         `json:"filename"`
	RelativePath string         `json:"relativePath"`
	FileSize     int64          `json:"fileSize"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Format       string         `json:"format"`
	CreatedAt    time.Time      `json:"createdAt"`
	Metadata     *ImageMetadata `json:"metadata,omitempty"`
	ViewCount    int64          `json:"viewCount"`
}

// ThumbnailEmbedded is one entry of Collection.Thumbnails.
type ThumbnailEmbedded struct {
	ImageID       ID        `json:"imageId"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	ThumbnailPath string    `json:"thumbnailPath"`
	Bytes         int64     `json:"bytes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CacheEmbedded is one entry of Collection.CacheImages.
type CacheEmbedded struct {
	ImageID   ID        `json:"imageId"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CachePath string    `json:"cachePath"`
	Quality   int       `json:"quality"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Statistics is recomputed from Images on every mutation that changes
// the array; it is never the independent source of truth.
type Statistics struct {
	TotalItems int   `json:"totalItems"`
	TotalSize  int64 `json:"totalSize"`
}

// Collection is the primary aggregate: it exclusively owns Images,
// Thumbnails, and CacheImages. Entries in those arrays have no existence
// outside their parent document.
type Collection struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Type        Type       `json:"type"`
	LibraryID   *ID        `json:"libraryId,omitempty"`
	Description string     `json:"description"`
	Deleted     bool       `json:"deleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Statistics  Statistics `json:"statistics"`

	Images       []ImageEmbedded     `json:"images"`
	Thumbnails   []ThumbnailEmbedded `json:"thumbnails"`
	CacheImages  []CacheEmbedded     `json:"cacheImages"`

	// Version drives the optimistic CAS loop in CollectionStore; callers
	// never set it directly.
	Version int64 `json:"version"`
}

// RecomputeStatistics sets Statistics from the current Images array, per
// the invariant totalItems == |Images| and totalSize == Σ fileSize.
func (c *Collection) RecomputeStatistics() {
	c.Statistics.TotalItems = len(c.Images)
	var total int64
	for _, img := range c.Images {
		total += img.FileSize
	}
	c.Statistics.TotalSize = total
}

// FindImage returns the image with the given (filename, relativePath),
// the uniqueness key for Images.
func (c *Collection) FindImage(filename, relativePath string) (ImageEmbedded, bool) {
	for _, img := range c.Images {
		if img.Filename == filename && img.RelativePath == relativePath {
			return img, true
		}
	}
	return ImageEmbedded{}, false
}

// FindThumbnail returns the thumbnail keyed by (imageID, width, height).
func (c *Collection) FindThumbnail(imageID ID, width, height int) (ThumbnailEmbedded, bool) {
	for _, t := range c.Thumbnails {
		if t.ImageID == imageID && t.Width == width && t.Height == height {
			return t, true
		}
	}
	return ThumbnailEmbedded{}, false
}

// FindCache returns the cache rendition keyed by (imageID, width, height).
func (c *Collection) FindCache(imageID ID, width, height int) (CacheEmbedded, bool) {
	for _, ci := range c.CacheImages {
		if ci.ImageID == imageID && ci.Width == width && ci.Height == height {
			return ci, true
		}
	}
	return CacheEmbedded{}, false
}
