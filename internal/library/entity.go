// Package library defines Library, a user-defined grouping of
// collections. A Library references Collections weakly — it never owns
// them, unlike the Collection aggregate's ownership of its embedded
// arrays.
package library

import (
	"time"

	"github.com/antti/imagevault/internal/collections"
)

// Settings holds per-library behavior flags.
type Settings struct {
	AutoScan bool `json:"autoScan"`
}

// Statistics is a denormalized rollup over the library's collections,
// refreshed only by an explicit Store.UpdateStatistics call rather than
// maintained transactionally.
type Statistics struct {
	TotalCollections int   `json:"totalCollections"`
	TotalMediaItems  int   `json:"totalMediaItems"`
	TotalSize        int64 `json:"totalSize"`
}

// Library is a named container for collections.
type Library struct {
	ID          collections.ID `json:"id"`
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	Description string         `json:"description"`
	Settings    Settings       `json:"settings"`
	Statistics  Statistics     `json:"statistics"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
