// Package orchestrator turns a scan request into image/thumbnail/cache
// messages and enforces the overwrite policy.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/navindex"
	"github.com/antti/imagevault/internal/scan"
	"github.com/antti/imagevault/internal/shared"
)

// ScanRequest is the input accepted from the API or the scheduler.
type ScanRequest struct {
	CollectionID      *collections.ID
	LibraryID         *collections.ID
	OverwriteExisting bool
	ForceRegenerate   bool
}

// Outcome reports how one target collection was handled.
type Outcome struct {
	CollectionID collections.ID
	Skipped      bool
	ImagesFound  int
	Error        error
}

// Summary aggregates outcomes across a whole Run and is returned to Run's
// caller only; HandleLibraryScan discards it, so it is not persisted.
type Summary struct {
	ImagesFound   int
	ImagesSkipped int
	Errors        []string
}

// RenditionPlan is the set of thumbnail/cache sizes a scan should
// request for every newly added image; it mirrors the dimension/quality
// defaults internal/config centralizes.
type RenditionPlan struct {
	ThumbnailWidth  int
	ThumbnailHeight int
	CacheWidth      int
	CacheHeight     int
	Quality         int
}

// Publisher is the MessageBus surface the orchestrator needs; *bus.Bus
// satisfies it directly, and tests can supply a fake.
type Publisher interface {
	Publish(ctx context.Context, msg bus.Message) error
	PublishBatch(ctx context.Context, msgs []bus.Message) error
}

// Orchestrator coordinates FileScanner, CollectionStore, and MessageBus,
// writing every committed collection mutation through to the
// NavigationIndex.
type Orchestrator struct {
	store collections.Store
	bus   Publisher
	index navindex.Index
	plan  RenditionPlan
}

// New builds an Orchestrator. index may be nil in tests; the
// NavigationIndex is best-effort derived state.
func New(store collections.Store, b Publisher, index navindex.Index, plan RenditionPlan) *Orchestrator {
	return &Orchestrator{store: store, bus: b, index: index, plan: plan}
}

// ImageProcessingPayload is what Run publishes per discovered image; the
// image.processing consumer (HandleImageProcessing) turns it into an
// atomic document append plus downstream rendition messages.
type ImageProcessingPayload struct {
	CollectionID    string                     `json:"collectionId"`
	CollectionPath  string                     `json:"collectionPath"`
	CollectionType  collections.Type           `json:"collectionType"`
	Filename        string                     `json:"filename"`
	RelativePath    string                     `json:"relativePath"`
	FileSize        int64                      `json:"fileSize"`
	Width           int                        `json:"width"`
	Height          int                        `json:"height"`
	Format          string                     `json:"format"`
	Metadata        *collections.ImageMetadata `json:"metadata,omitempty"`
	ForceRegenerate bool                       `json:"forceRegenerate"`
}

// Run resolves the target set of collections and, for each, enumerates
// files and publishes one image.processing message per descriptor.
func (o *Orchestrator) Run(ctx context.Context, req ScanRequest) (Summary, []Outcome, error) {
	targets, err := o.resolveTargets(ctx, req)
	if err != nil {
		return Summary{}, nil, err
	}

	var summary Summary
	outcomes := make([]Outcome, 0, len(targets))

	for _, coll := range targets {
		outcome := o.scanOne(ctx, coll, req)
		outcomes = append(outcomes, outcome)

		if outcome.Skipped {
			summary.ImagesSkipped++
			continue
		}
		summary.ImagesFound += outcome.ImagesFound
		if outcome.Error != nil {
			summary.Errors = append(summary.Errors, outcome.Error.Error())
		}
	}

	return summary, outcomes, nil
}

func (o *Orchestrator) resolveTargets(ctx context.Context, req ScanRequest) ([]collections.Collection, error) {
	if req.CollectionID != nil {
		c, ok, err := o.store.Get(ctx, *req.CollectionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.NewNotFoundError("collection " + req.CollectionID.String() + " not found")
		}
		return []collections.Collection{c}, nil
	}

	if req.LibraryID != nil {
		const pageSize = 200
		var all []collections.Collection
		for skip := 0; ; skip += pageSize {
			page, err := o.store.Query(ctx, collections.Filter{LibraryID: req.LibraryID},
				collections.Sort{Field: collections.SortUpdatedAt, Direction: collections.Ascending}, skip, pageSize)
			if err != nil {
				return nil, err
			}
			all = append(all, page...)
			if len(page) < pageSize {
				break
			}
		}
		return all, nil
	}

	return nil, shared.NewValidationError("collectionId", "scan request must set CollectionID or LibraryID")
}

func (o *Orchestrator) scanOne(ctx context.Context, coll collections.Collection, req ScanRequest) Outcome {
	if len(coll.Images) > 0 && !req.OverwriteExisting {
		return Outcome{CollectionID: coll.ID, Skipped: true}
	}

	var descriptors []scan.ImageDescriptor
	var err error
	switch coll.Type {
	case collections.TypeFolder:
		descriptors, err = scan.ScanFolder(ctx, coll.Path)
	default:
		descriptors, err = scan.ScanArchive(ctx, coll.Path)
	}
	if err != nil {
		return Outcome{CollectionID: coll.ID, Error: err}
	}

	for _, d := range descriptors {
		payload := ImageProcessingPayload{
			CollectionID:    coll.ID.String(),
			CollectionPath:  coll.Path,
			CollectionType:  coll.Type,
			Filename:        d.Filename,
			RelativePath:    d.RelativePath,
			FileSize:        d.FileSize,
			Width:           d.Width,
			Height:          d.Height,
			Format:          d.Format,
			Metadata:        d.Metadata,
			ForceRegenerate: req.ForceRegenerate,
		}
		msg := bus.Message{
			Type:    bus.TypeImageProcessing,
			Queue:   bus.QueueImageProcessing,
			Payload: payload,
		}
		if err := o.bus.Publish(ctx, msg); err != nil {
			slog.Warn("orchestrator: publish image.processing failed", "collection", coll.ID.String(), "file", d.Filename, "error", err)
		}
	}

	return Outcome{CollectionID: coll.ID, ImagesFound: len(descriptors)}
}

// LibraryScanPayload is what Scheduler.Run("library-scan") publishes to
// the library_scan queue.
type LibraryScanPayload struct {
	LibraryID         string `json:"libraryId"`
	OverwriteExisting bool   `json:"overwriteExisting"`
	ForceRegenerate   bool   `json:"forceRegenerate"`
}

// HandleLibraryScan is the library_scan queue's consumer: it expands one
// library-wide scan request into Run over every collection the library
// contains.
func (o *Orchestrator) HandleLibraryScan(ctx context.Context, payload []byte) error {
	var p LibraryScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return shared.NewValidationError("payload", "unmarshal library_scan_queue payload: "+err.Error())
	}

	libID, err := collections.ParseID(p.LibraryID)
	if err != nil {
		return shared.NewValidationError("libraryId", "invalid libraryId: "+err.Error())
	}

	_, _, err = o.Run(ctx, ScanRequest{
		LibraryID:         &libID,
		OverwriteExisting: p.OverwriteExisting,
		ForceRegenerate:   p.ForceRegenerate,
	})
	return err
}

// HandleImageProcessing is the image_processing queue's consumer: it
// appends the descriptor to the collection's Images[] and, when newly
// added, publishes the thumbnail.generation and cache.generation
// messages that drive ThumbnailWorker/CacheWorker.
func (o *Orchestrator) HandleImageProcessing(ctx context.Context, payload []byte) error {
	var p ImageProcessingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return shared.NewValidationError("payload", "unmarshal image.processing payload: "+err.Error())
	}

	collID, err := collections.ParseID(p.CollectionID)
	if err != nil {
		return shared.NewValidationError("collectionId", "invalid collectionId: "+err.Error())
	}

	imageID := collections.NewID()
	result, err := o.store.AtomicAddImage(ctx, collID, collections.ImageEmbedded{
		ID:           imageID,
		Filename:     p.Filename,
		RelativePath: p.RelativePath,
		FileSize:     p.FileSize,
		Width:        p.Width,
		Height:       p.Height,
		Format:       p.Format,
		Metadata:     p.Metadata,
	})
	if err != nil {
		return err
	}
	if !result.Added {
		return nil
	}
	navindex.UpsertFromStore(ctx, o.index, o.store, collID)

	addedID := result.Existing.ID
	if addedID == collections.Zero {
		addedID = imageID
	}

	renditionMsgs := []bus.Message{
		{
			Type:  bus.TypeThumbnailGeneration,
			Queue: bus.QueueThumbnailGeneration,
			Payload: RenditionPayload{
				CollectionID:    p.CollectionID,
				CollectionPath:  p.CollectionPath,
				CollectionType:  p.CollectionType,
				ImageID:         addedID.String(),
				RelativePath:    p.RelativePath,
				Width:           o.plan.ThumbnailWidth,
				Height:          o.plan.ThumbnailHeight,
				Format:          p.Format,
				Quality:         o.plan.Quality,
				ForceRegenerate: p.ForceRegenerate,
			},
		},
		{
			Type:  bus.TypeCacheGeneration,
			Queue: bus.QueueCacheGeneration,
			Payload: RenditionPayload{
				CollectionID:    p.CollectionID,
				CollectionPath:  p.CollectionPath,
				CollectionType:  p.CollectionType,
				ImageID:         addedID.String(),
				RelativePath:    p.RelativePath,
				Width:           o.plan.CacheWidth,
				Height:          o.plan.CacheHeight,
				Format:          p.Format,
				Quality:         o.plan.Quality,
				ForceRegenerate: p.ForceRegenerate,
			},
		},
	}

	return o.bus.PublishBatch(ctx, renditionMsgs)
}

// RenditionPayload is the shared input shape for the thumbnail and
// cache workers.
type RenditionPayload struct {
	CollectionID    string           `json:"collectionId"`
	CollectionPath  string           `json:"collectionPath"`
	CollectionType  collections.Type `json:"collectionType"`
	ImageID         string           `json:"imageId"`
	RelativePath    string           `json:"relativePath"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	Format          string           `json:"format"`
	Quality         int              `json:"quality"`
	ForceRegenerate bool             `json:"forceRegenerate"`
}
