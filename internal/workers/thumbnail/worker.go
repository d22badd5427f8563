// Package thumbnail consumes thumbnail.generation messages and
// idempotently writes the thumbnail to disk and into the collection's
// Thumbnails[] array; re-delivered messages find the work done and skip.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/imagecodec"
	"github.com/antti/imagevault/internal/navindex"
	"github.com/antti/imagevault/internal/orchestrator"
	"github.com/antti/imagevault/internal/rendition"
	"github.com/antti/imagevault/internal/shared"
	"github.com/antti/imagevault/internal/workers"
)

// Publisher is the MessageBus surface needed to report per-image
// failures; *bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg bus.Message) error
}

// Worker generates and persists thumbnail renditions.
type Worker struct {
	store collections.Store
	files rendition.Store
	bus   Publisher
	index navindex.Index
}

// New builds a Worker. index may be nil in tests.
func New(store collections.Store, files rendition.Store, pub Publisher, index navindex.Index) *Worker {
	return &Worker{store: store, files: files, bus: pub, index: index}
}

// HandleTask processes one thumbnail.generation message.
func (w *Worker) HandleTask(ctx context.Context, payload []byte) error {
	var p orchestrator.RenditionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return shared.NewValidationError("payload", "unmarshal thumbnail.generation payload: "+err.Error())
	}

	collID, err := collections.ParseID(p.CollectionID)
	if err != nil {
		return shared.NewValidationError("collectionId", "invalid collectionId: "+err.Error())
	}
	imageID, err := collections.ParseID(p.ImageID)
	if err != nil {
		return shared.NewValidationError("imageId", "invalid imageId: "+err.Error())
	}

	coll, ok, err := w.store.Get(ctx, collID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewNotFoundError("collection " + p.CollectionID + " not found")
	}

	if existing, found := coll.FindThumbnail(imageID, p.Width, p.Height); found && !p.ForceRegenerate {
		if exists, _ := w.files.Exists(ctx, existing.ThumbnailPath); exists {
			return nil
		}
	}

	srcPath, cleanup, err := workers.ResolveSource(ctx, p.CollectionType, p.CollectionPath, p.RelativePath)
	if err != nil {
		w.reportFailure(ctx, p, err)
		return nil
	}
	defer cleanup()

	format := imagecodec.FormatJPEG
	data, err := imagecodec.Thumbnail(ctx, srcPath, p.Width, p.Height, format, p.Quality)
	if err != nil {
		// Decode failure: ack without requeue, surface a failure event.
		w.reportFailure(ctx, p, err)
		return nil
	}

	path, err := w.files.Save(ctx, rendition.KindThumbnail, p.CollectionID, p.ImageID, p.Width, p.Height, string(format), bytes.NewReader(data))
	if err != nil {
		// I/O failure: let asynq retry/dead-letter.
		return shared.NewTransientError(err, "write thumbnail")
	}

	// The file was just (re)written, so the entry must track it even when
	// the key already matched.
	result, err := w.store.AtomicAddThumbnail(ctx, collID, collections.ThumbnailEmbedded{
		ImageID:       imageID,
		Width:         p.Width,
		Height:        p.Height,
		ThumbnailPath: path,
		Bytes:         int64(len(data)),
	}, true)
	if err != nil {
		return err
	}
	if result.Added {
		navindex.UpsertFromStore(ctx, w.index, w.store, collID)
	}
	return nil
}

func (w *Worker) reportFailure(ctx context.Context, p orchestrator.RenditionPayload, cause error) {
	slog.Warn("thumbnail: generation failed", "collection", p.CollectionID, "image", p.ImageID, "error", cause)
	err := w.bus.Publish(ctx, bus.Message{
		Type:  "thumbnail.failed",
		Queue: bus.QueueDLQ,
		Payload: map[string]any{
			"collectionId": p.CollectionID,
			"imageId":      p.ImageID,
			"error":        cause.Error(),
		},
	})
	if err != nil {
		slog.Error("thumbnail: publish failure event failed", "error", err)
	}
}
