package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/shared"
)

// maxCASRetries bounds the stale-read retry loop AtomicAdd* falls back
// to when a concurrent writer wins the race on version.
const maxCASRetries = 8

// CollectionStore implements collections.Store on top of a jsonb-columned
// Postgres table: the embedded Images/Thumbnails/CacheImages arrays live
// as jsonb columns rather than child rows, and a version column drives
// optimistic-concurrency appends. Modeled on the tx.go WithTx/GetDBTX
// pattern used by every repository in this codebase.
type CollectionStore struct {
	pool *pgxpool.Pool

	// fileExists reports whether a rendition's storage-relative path is
	// still present on disk; AtomicAddThumbnail/AtomicAddCache replace a
	// matching entry whose file has gone missing. A nil check treats
	// every recorded path as present.
	fileExists func(ctx context.Context, path string) bool
}

// NewCollectionStore returns a Store backed by pool. fileExists is the
// disk-presence check behind the thumbnail/cache replace contract;
// callers without a rendition store pass nil.
func NewCollectionStore(pool *pgxpool.Pool, fileExists func(ctx context.Context, path string) bool) *CollectionStore {
	return &CollectionStore{pool: pool, fileExists: fileExists}
}

func (s *CollectionStore) renditionOnDisk(ctx context.Context, path string) bool {
	if s.fileExists == nil {
		return true
	}
	return s.fileExists(ctx, path)
}

type collectionRow struct {
	id          collections.ID
	name        string
	path        string
	typ         collections.Type
	libraryID   *collections.ID
	description string
	deleted     bool
	createdAt   time.Time
	updatedAt   time.Time
	totalItems  int
	totalSize   int64
	images      []collections.ImageEmbedded
	thumbnails  []collections.ThumbnailEmbedded
	cacheImages []collections.CacheEmbedded
	version     int64
}

func (r collectionRow) toCollection() collections.Collection {
	return collections.Collection{
		ID:          r.id,
		Name:        r.name,
		Path:        r.path,
		Type:        r.typ,
		LibraryID:   r.libraryID,
		Description: r.description,
		Deleted:     r.deleted,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
		Statistics: collections.Statistics{
			TotalItems: r.totalItems,
			TotalSize:  r.totalSize,
		},
		Images:      r.images,
		Thumbnails:  r.thumbnails,
		CacheImages: r.cacheImages,
		Version:     r.version,
	}
}

const collectionColumns = `id, name, path, type, library_id, description, deleted,
	created_at, updated_at, total_items, total_size, images, thumbnails, cache_images, version`

func scanCollectionRow(row pgx.Row) (collectionRow, error) {
	var r collectionRow
	var idStr string
	var libraryIDStr *string
	var imagesRaw, thumbsRaw, cacheRaw []byte

	err := row.Scan(
		&idStr, &r.name, &r.path, &r.typ, &libraryIDStr, &r.description, &r.deleted,
		&r.createdAt, &r.updatedAt, &r.totalItems, &r.totalSize, &imagesRaw, &thumbsRaw, &cacheRaw, &r.version,
	)
	if err != nil {
		return r, err
	}

	r.id, err = collections.ParseID(idStr)
	if err != nil {
		return r, fmt.Errorf("collection id %q: %w", idStr, err)
	}
	if libraryIDStr != nil {
		lid, err := collections.ParseID(*libraryIDStr)
		if err != nil {
			return r, fmt.Errorf("library id %q: %w", *libraryIDStr, err)
		}
		r.libraryID = &lid
	}
	if err := json.Unmarshal(imagesRaw, &r.images); err != nil {
		return r, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(thumbsRaw, &r.thumbnails); err != nil {
		return r, fmt.Errorf("decode thumbnails: %w", err)
	}
	if err := json.Unmarshal(cacheRaw, &r.cacheImages); err != nil {
		return r, fmt.Errorf("decode cache images: %w", err)
	}
	return r, nil
}

func (s *CollectionStore) Create(ctx context.Context, spec collections.CreateSpec, overwrite bool) (collections.ID, error) {
	db := GetDBTX(ctx, s.pool)

	if !overwrite {
		var existingIDStr string
		err := db.QueryRow(ctx,
			`SELECT id FROM collections WHERE path = $1 AND deleted = false`, spec.Path,
		).Scan(&existingIDStr)
		if err == nil {
			existingID, parseErr := collections.ParseID(existingIDStr)
			if parseErr != nil {
				return collections.Zero, parseErr
			}
			return existingID, shared.NewConflictError("collection already exists at path " + spec.Path)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return collections.Zero, shared.NewTransientError(err, "lookup existing collection by path")
		}
	}

	id := collections.NewID()
	now := time.Now().UTC()
	var libraryIDStr *string
	if spec.LibraryID != nil {
		s := spec.LibraryID.String()
		libraryIDStr = &s
	}

	_, err := db.Exec(ctx, `
		INSERT INTO collections (id, name, path, type, library_id, description, deleted,
			created_at, updated_at, total_items, total_size, images, thumbnails, cache_images, version)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $7, 0, 0, '[]', '[]', '[]', 0)
	`, id.String(), spec.Name, spec.Path, string(spec.Type), libraryIDStr, spec.Description, now)
	if err != nil {
		return collections.Zero, conflictOnUnique(err,
			"collection already exists at path "+spec.Path, "insert collection")
	}
	return id, nil
}

func (s *CollectionStore) Get(ctx context.Context, id collections.ID) (collections.Collection, bool, error) {
	db := GetDBTX(ctx, s.pool)
	row := db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = $1 AND deleted = false`, id.String())
	r, err := scanCollectionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return collections.Collection{}, false, nil
	}
	if err != nil {
		return collections.Collection{}, false, shared.NewTransientError(err, "get collection")
	}
	return r.toCollection(), true, nil
}

func (s *CollectionStore) Update(ctx context.Context, id collections.ID, patch collections.Patch) error {
	db := GetDBTX(ctx, s.pool)
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if patch.Name != nil {
		sets = append(sets, "name = "+next(*patch.Name))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+next(*patch.Description))
	}
	if patch.LibraryID != nil {
		if *patch.LibraryID == nil {
			sets = append(sets, "library_id = NULL")
		} else {
			sets = append(sets, "library_id = "+next((*patch.LibraryID).String()))
		}
	}
	args = append(args, id.String())
	query := fmt.Sprintf("UPDATE collections SET %s WHERE id = $%d AND deleted = false",
		joinComma(sets), len(args))

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return shared.NewTransientError(err, "update collection")
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *CollectionStore) SoftDelete(ctx context.Context, id collections.ID) error {
	db := GetDBTX(ctx, s.pool)
	tag, err := db.Exec(ctx,
		`UPDATE collections SET deleted = true, updated_at = $1 WHERE id = $2 AND deleted = false`,
		time.Now().UTC(), id.String())
	if err != nil {
		return shared.NewTransientError(err, "soft delete collection")
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// casAppend implements the generic shape of AtomicAddImage/Thumbnail/Cache:
// read the current array under its version, look for a matching entry via
// match, and either return it, overwrite it (when shouldReplace says the
// entry is stale), or append item — retrying on a lost race.
func casAppend[T any](
	ctx context.Context, s *CollectionStore, id collections.ID, column string,
	decode func([]byte) ([]T, error),
	match func([]T) (int, bool),
	item T,
	shouldReplace func(existing T) bool,
	recomputeStats bool,
) (collections.AddResult[T], error) {
	db := GetDBTX(ctx, s.pool)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var raw []byte
		var version int64
		err := db.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s, version FROM collections WHERE id = $1 AND deleted = false`, column),
			id.String(),
		).Scan(&raw, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return collections.AddResult[T]{}, notFound(id)
		}
		if err != nil {
			var zero collections.AddResult[T]
			return zero, shared.NewTransientError(err, "read collection array")
		}

		items, err := decode(raw)
		if err != nil {
			var zero collections.AddResult[T]
			return zero, fmt.Errorf("decode %s: %w", column, err)
		}

		if idx, ok := match(items); ok {
			if !shouldReplace(items[idx]) {
				return collections.AddResult[T]{Added: false, Existing: items[idx]}, nil
			}
			items[idx] = item
		} else {
			items = append(items, item)
		}

		encoded, err := json.Marshal(items)
		if err != nil {
			var zero collections.AddResult[T]
			return zero, fmt.Errorf("encode %s: %w", column, err)
		}

		var tag pgconn.CommandTag
		if recomputeStats {
			totalItems, totalSize := statsFor(items)
			tag, err = db.Exec(ctx, fmt.Sprintf(
				`UPDATE collections SET %s = $1, version = version + 1, updated_at = $2,
					total_items = $3, total_size = $4
				 WHERE id = $5 AND version = $6`, column),
				encoded, time.Now().UTC(), totalItems, totalSize, id.String(), version)
		} else {
			tag, err = db.Exec(ctx, fmt.Sprintf(
				`UPDATE collections SET %s = $1, version = version + 1, updated_at = $2
				 WHERE id = $3 AND version = $4`, column),
				encoded, time.Now().UTC(), id.String(), version)
		}
		if err != nil {
			var zero collections.AddResult[T]
			return zero, shared.NewTransientError(err, "append to collection array")
		}
		if tag.RowsAffected() == 1 {
			return collections.AddResult[T]{Added: true}, nil
		}
		// Lost the race against a concurrent writer; retry with a fresh read.
	}

	var zero collections.AddResult[T]
	return zero, shared.NewTransientError(errCASExhausted, "too many concurrent writers to collection "+id.String())
}

var errCASExhausted = errors.New("exhausted CAS retries")

// statsFor recomputes totalItems/totalSize when the array under CAS is
// Images; for Thumbnails/CacheImages it is never called with
// recomputeStats=true, so the generic signature is kept simple by
// special-casing the one caller that needs it.
func statsFor[T any](items []T) (int, int64) {
	var totalSize int64
	imgs, ok := any(items).([]collections.ImageEmbedded)
	if !ok {
		return len(items), 0
	}
	for _, img := range imgs {
		totalSize += img.FileSize
	}
	return len(imgs), totalSize
}

func (s *CollectionStore) AtomicAddImage(ctx context.Context, id collections.ID, image collections.ImageEmbedded) (collections.AddResult[collections.ImageEmbedded], error) {
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	if image.ID.IsZero() {
		image.ID = collections.NewID()
	}
	return casAppend(ctx, s, id, "images",
		func(raw []byte) ([]collections.ImageEmbedded, error) {
			var items []collections.ImageEmbedded
			return items, json.Unmarshal(raw, &items)
		},
		func(items []collections.ImageEmbedded) (int, bool) {
			for i, existing := range items {
				if existing.Filename == image.Filename && existing.RelativePath == image.RelativePath {
					return i, true
				}
			}
			return 0, false
		},
		image,
		func(collections.ImageEmbedded) bool { return false },
		true,
	)
}

func (s *CollectionStore) AtomicAddThumbnail(ctx context.Context, id collections.ID, thumb collections.ThumbnailEmbedded, replace bool) (collections.AddResult[collections.ThumbnailEmbedded], error) {
	if thumb.CreatedAt.IsZero() {
		thumb.CreatedAt = time.Now().UTC()
	}
	return casAppend(ctx, s, id, "thumbnails",
		func(raw []byte) ([]collections.ThumbnailEmbedded, error) {
			var items []collections.ThumbnailEmbedded
			return items, json.Unmarshal(raw, &items)
		},
		func(items []collections.ThumbnailEmbedded) (int, bool) {
			for i, existing := range items {
				if existing.ImageID == thumb.ImageID && existing.Width == thumb.Width && existing.Height == thumb.Height {
					return i, true
				}
			}
			return 0, false
		},
		thumb,
		func(existing collections.ThumbnailEmbedded) bool {
			return replace || !s.renditionOnDisk(ctx, existing.ThumbnailPath)
		},
		false,
	)
}

func (s *CollectionStore) AtomicAddCache(ctx context.Context, id collections.ID, cache collections.CacheEmbedded, replace bool) (collections.AddResult[collections.CacheEmbedded], error) {
	if cache.CreatedAt.IsZero() {
		cache.CreatedAt = time.Now().UTC()
	}
	return casAppend(ctx, s, id, "cache_images",
		func(raw []byte) ([]collections.CacheEmbedded, error) {
			var items []collections.CacheEmbedded
			return items, json.Unmarshal(raw, &items)
		},
		func(items []collections.CacheEmbedded) (int, bool) {
			for i, existing := range items {
				if existing.ImageID == cache.ImageID && existing.Width == cache.Width && existing.Height == cache.Height {
					return i, true
				}
			}
			return 0, false
		},
		cache,
		func(existing collections.CacheEmbedded) bool {
			return replace || !s.renditionOnDisk(ctx, existing.CachePath)
		},
		false,
	)
}

func (s *CollectionStore) UpdateStatistics(ctx context.Context, id collections.ID) error {
	db := GetDBTX(ctx, s.pool)
	tag, err := db.Exec(ctx, `
		UPDATE collections SET
			total_items = jsonb_array_length(images),
			total_size = COALESCE((SELECT SUM((elem->>'fileSize')::bigint) FROM jsonb_array_elements(images) elem), 0),
			updated_at = $1
		WHERE id = $2 AND deleted = false`,
		time.Now().UTC(), id.String())
	if err != nil {
		return shared.NewTransientError(err, "recompute statistics")
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *CollectionStore) Query(ctx context.Context, filter collections.Filter, sort collections.Sort, skip, limit int) ([]collections.Collection, error) {
	db := GetDBTX(ctx, s.pool)

	where := "deleted = false"
	args := []any{}
	if filter.LibraryID != nil {
		args = append(args, filter.LibraryID.String())
		where += fmt.Sprintf(" AND library_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	orderCol := sortColumn(sort.Field)
	direction := "ASC"
	if sort.Direction == collections.Descending {
		direction = "DESC"
	}

	args = append(args, limit, skip)
	query := fmt.Sprintf(`SELECT %s FROM collections WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		collectionColumns, where, orderCol, direction, len(args)-1, len(args))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewTransientError(err, "query collections")
	}
	defer rows.Close()

	var out []collections.Collection
	for rows.Next() {
		r, err := scanCollectionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		out = append(out, r.toCollection())
	}
	return out, rows.Err()
}

func sortColumn(field collections.SortField) string {
	switch field {
	case collections.SortCreatedAt:
		return "created_at"
	case collections.SortName:
		return "name"
	case collections.SortImageCount:
		return "total_items"
	case collections.SortTotalSize:
		return "total_size"
	default:
		return "updated_at"
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
