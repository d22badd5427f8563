// Package navindex is a derived, best-effort secondary index over
// collections giving sub-millisecond pagination, neighbor lookup, and
// filtering. Every key is rebuildable from the collection store, so
// callers treat a miss as "fall back to direct DB, then trigger a
// rebuild".
package navindex

import (
	"context"
	"log/slog"
	"time"

	"github.com/antti/imagevault/internal/collections"
)

// CollectionSummary is the filterable, denormalized projection stored
// per collection as a JSON summary key.
type CollectionSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Type          string    `json:"type"`
	LibraryID     string    `json:"libraryId,omitempty"`
	FirstImageID  string    `json:"firstImageId,omitempty"`
	ImageCount    int       `json:"imageCount"`
	ThumbnailCount int      `json:"thumbnailCount"`
	CacheCount    int       `json:"cacheCount"`
	TotalSize     int64     `json:"totalSize"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	// Tags has no populated source in the Collection aggregate today;
	// a future tagging feature can fill it without a schema change.
	Tags []string `json:"tags,omitempty"`
}

// SummaryFrom projects a collections.Collection into its index summary.
func SummaryFrom(c collections.Collection) CollectionSummary {
	s := CollectionSummary{
		ID:             c.ID.String(),
		Name:           c.Name,
		Path:           c.Path,
		Type:           string(c.Type),
		ImageCount:     len(c.Images),
		ThumbnailCount: len(c.Thumbnails),
		CacheCount:     len(c.CacheImages),
		TotalSize:      c.Statistics.TotalSize,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.LibraryID != nil {
		s.LibraryID = c.LibraryID.String()
	}
	if len(c.Images) > 0 {
		s.FirstImageID = c.Images[0].ID.String()
	}
	return s
}

// SortField and SortDirection are re-exported from internal/collections
// so callers of this package don't need to import both.
type (
	SortField     = collections.SortField
	SortDirection = collections.SortDirection
)

// NavigationResult answers GetNavigation: a collection's position among
// its siblings plus its immediate prev/next neighbors.
type NavigationResult struct {
	Prev     *CollectionSummary
	Next     *CollectionSummary
	Position int
	Total    int
}

// SiblingsResult answers GetSiblings: a page of summaries around (or at)
// a given collection's position.
type SiblingsResult struct {
	Summaries []CollectionSummary
	Position  int
	Page      int
	Total     int
}

// PageResult answers GetPage/GetByLibrary/GetByType.
type PageResult struct {
	Summaries []CollectionSummary
	Page      int
	Total     int
}

// RebuildStats summarizes a completed Rebuild.
type RebuildStats struct {
	Total       int
	LastRebuilt time.Time
}

// Index is the NavigationIndex's full surface, implemented against an
// external key-value store (internal/infra/redisindex.RedisIndex).
type Index interface {
	Rebuild(ctx context.Context, collections []collections.Collection) (RebuildStats, error)
	Upsert(ctx context.Context, c collections.Collection) error
	Remove(ctx context.Context, id collections.ID) error

	GetNavigation(ctx context.Context, id collections.ID, sort SortField, dir SortDirection) (NavigationResult, error)
	GetSiblings(ctx context.Context, id collections.ID, page, pageSize int, sort SortField, dir SortDirection) (SiblingsResult, error)
	GetPage(ctx context.Context, page, pageSize int, sort SortField, dir SortDirection) (PageResult, error)
	GetByLibrary(ctx context.Context, libraryID collections.ID, page, pageSize int, sort SortField, dir SortDirection) (PageResult, error)
	GetByType(ctx context.Context, t collections.Type, page, pageSize int, sort SortField, dir SortDirection) (PageResult, error)

	Count(ctx context.Context) (int64, error)
	CountByLibrary(ctx context.Context, libraryID collections.ID) (int64, error)
	CountByType(ctx context.Context, t collections.Type) (int64, error)

	GetCachedThumbnail(ctx context.Context, id collections.ID) ([]byte, bool, error)
	SetCachedThumbnail(ctx context.Context, id collections.ID, blob []byte, ttl time.Duration) error
	BatchCacheThumbnails(ctx context.Context, blobs map[collections.ID][]byte, ttl time.Duration) error
}

// UpsertFromStore re-reads a collection and writes it through to the
// index after a mutation commits. Best-effort: the index is derived
// state, so failures are logged and left for the next rebuild to
// reconcile rather than failing the mutation that triggered them.
func UpsertFromStore(ctx context.Context, idx Index, store collections.Store, id collections.ID) {
	if idx == nil {
		return
	}
	c, ok, err := store.Get(ctx, id)
	if err != nil {
		slog.Warn("navindex: read-back for index upsert failed", "collection", id.String(), "error", err)
		return
	}
	if !ok {
		// Soft-deleted (or gone) between the mutation and the read-back.
		if err := idx.Remove(ctx, id); err != nil {
			slog.Warn("navindex: remove failed", "collection", id.String(), "error", err)
		}
		return
	}
	if err := idx.Upsert(ctx, c); err != nil {
		slog.Warn("navindex: upsert failed", "collection", id.String(), "error", err)
	}
}

// SortFields lists every field the index maintains a primary sorted set
// for.
func SortFields() []SortField {
	return []SortField{
		collections.SortUpdatedAt,
		collections.SortCreatedAt,
		collections.SortName,
		collections.SortImageCount,
		collections.SortTotalSize,
	}
}

// Directions lists both directions the index maintains a sorted set for.
func Directions() []SortDirection {
	return []SortDirection{collections.Ascending, collections.Descending}
}
