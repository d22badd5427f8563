package scheduler

import (
	"context"
	"fmt"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/navindex"
	"github.com/antti/imagevault/internal/orchestrator"
	"github.com/antti/imagevault/internal/shared"
)

// Publisher is the MessageBus surface the library-scan handler needs;
// *bus.Bus satisfies it, and tests can supply a fake.
type Publisher interface {
	Publish(ctx context.Context, msg bus.Message) error
}

// LibraryScanHandler returns a Handler for LibraryScanJobType: it reads
// {libraryId} out of the job's Parameters and publishes one
// library_scan_queue message, which ScanOrchestrator's own consumer
// expands into a scan of every collection the library contains.
func LibraryScanHandler(pub Publisher) Handler {
	return func(ctx context.Context, job Job) (map[string]any, error) {
		raw, ok := job.Parameters["libraryId"]
		if !ok {
			return nil, shared.NewValidationError("parameters.libraryId", "library-scan job is missing libraryId")
		}
		libraryID, ok := raw.(string)
		if !ok {
			return nil, shared.NewValidationError("parameters.libraryId", "library-scan job's libraryId is not a string")
		}
		if _, err := collections.ParseID(libraryID); err != nil {
			return nil, shared.NewValidationError("parameters.libraryId", "invalid libraryId: "+err.Error())
		}

		msg := bus.Message{
			Type:    bus.TypeLibraryScan,
			Queue:   bus.QueueLibraryScan,
			Payload: orchestrator.LibraryScanPayload{LibraryID: libraryID},
		}
		if err := pub.Publish(ctx, msg); err != nil {
			return nil, fmt.Errorf("publish library_scan_queue message: %w", err)
		}
		return map[string]any{"libraryId": libraryID}, nil
	}
}

// IndexRebuildHandler returns a Handler for IndexRebuildJobType: it
// enumerates every non-deleted collection in creation order and hands
// the full set to Index.Rebuild, restoring any sorted-set or summary key
// an incremental upsert failed to write.
func IndexRebuildHandler(store collections.Store, idx navindex.Index) Handler {
	return func(ctx context.Context, job Job) (map[string]any, error) {
		const pageSize = 500
		var all []collections.Collection
		for skip := 0; ; skip += pageSize {
			page, err := store.Query(ctx, collections.Filter{},
				collections.Sort{Field: collections.SortCreatedAt, Direction: collections.Ascending},
				skip, pageSize)
			if err != nil {
				return nil, fmt.Errorf("enumerate collections for rebuild: %w", err)
			}
			all = append(all, page...)
			if len(page) < pageSize {
				break
			}
		}

		stats, err := idx.Rebuild(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("rebuild navigation index: %w", err)
		}
		return map[string]any{"indexed": stats.Total}, nil
	}
}
