package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/library"
	"github.com/antti/imagevault/internal/shared"
)

// LibraryStore implements library.Store on top of the libraries table.
// Settings is stored as a jsonb column, mirroring collections'
// images/thumbnails/cache_images jsonb columns in CollectionStore.
type LibraryStore struct {
	pool *pgxpool.Pool
}

// NewLibraryStore returns a Store backed by pool.
func NewLibraryStore(pool *pgxpool.Pool) *LibraryStore {
	return &LibraryStore{pool: pool}
}

const libraryColumns = `id, name, path, description, settings,
	total_collections, total_media_items, total_size, created_at, updated_at`

func scanLibraryRow(row pgx.Row) (library.Library, error) {
	var (
		idStr      string
		l          library.Library
		settingsJS []byte
	)
	err := row.Scan(&idStr, &l.Name, &l.Path, &l.Description, &settingsJS,
		&l.Statistics.TotalCollections, &l.Statistics.TotalMediaItems, &l.Statistics.TotalSize,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return library.Library{}, err
	}
	id, err := collections.ParseID(idStr)
	if err != nil {
		return library.Library{}, err
	}
	l.ID = id
	if err := json.Unmarshal(settingsJS, &l.Settings); err != nil {
		return library.Library{}, err
	}
	return l, nil
}

func (s *LibraryStore) Create(ctx context.Context, spec library.CreateSpec) (collections.ID, error) {
	db := GetDBTX(ctx, s.pool)

	var existingIDStr string
	err := db.QueryRow(ctx, `SELECT id FROM libraries WHERE path = $1`, spec.Path).Scan(&existingIDStr)
	if err == nil {
		return collections.Zero, shared.NewConflictError("library already exists at path " + spec.Path)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return collections.Zero, shared.NewTransientError(err, "lookup existing library by path")
	}

	id := collections.NewID()
	now := time.Now().UTC()
	settingsJS, err := json.Marshal(spec.Settings)
	if err != nil {
		return collections.Zero, shared.NewValidationError("settings", "marshal settings: "+err.Error())
	}

	_, err = db.Exec(ctx, `
		INSERT INTO libraries (id, name, path, description, settings,
			total_collections, total_media_items, total_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6, $6)
	`, id.String(), spec.Name, spec.Path, spec.Description, settingsJS, now)
	if err != nil {
		return collections.Zero, conflictOnUnique(err,
			"library already exists at path "+spec.Path, "insert library")
	}
	return id, nil
}

func (s *LibraryStore) Get(ctx context.Context, id collections.ID) (library.Library, bool, error) {
	db := GetDBTX(ctx, s.pool)
	row := db.QueryRow(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = $1`, id.String())
	l, err := scanLibraryRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return library.Library{}, false, nil
	}
	if err != nil {
		return library.Library{}, false, shared.NewTransientError(err, "get library")
	}
	return l, true, nil
}

func (s *LibraryStore) Update(ctx context.Context, id collections.ID, patch library.Patch) (library.Library, error) {
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
	if patch.Settings != nil {
		settingsJS, err := json.Marshal(*patch.Settings)
		if err != nil {
			return library.Library{}, shared.NewValidationError("settings", "marshal settings: "+err.Error())
		}
		sets = append(sets, "settings = "+next(settingsJS))
	}
	args = append(args, id.String())
	query := fmt.Sprintf("UPDATE libraries SET %s WHERE id = $%d", joinComma(sets), len(args))

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return library.Library{}, shared.NewTransientError(err, "update library")
	}
	if tag.RowsAffected() == 0 {
		return library.Library{}, shared.NewNotFoundError("library " + id.String() + " not found")
	}

	l, ok, err := s.Get(ctx, id)
	if err != nil {
		return library.Library{}, err
	}
	if !ok {
		return library.Library{}, shared.NewNotFoundError("library " + id.String() + " not found")
	}
	return l, nil
}

func (s *LibraryStore) Delete(ctx context.Context, id collections.ID) error {
	db := GetDBTX(ctx, s.pool)
	tag, err := db.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, id.String())
	if err != nil {
		return shared.NewTransientError(err, "delete library")
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("library " + id.String() + " not found")
	}
	return nil
}

func (s *LibraryStore) List(ctx context.Context) ([]library.Library, error) {
	db := GetDBTX(ctx, s.pool)
	rows, err := db.Query(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY created_at ASC`)
	if err != nil {
		return nil, shared.NewTransientError(err, "list libraries")
	}
	defer rows.Close()

	var out []library.Library
	for rows.Next() {
		l, err := scanLibraryRow(rows)
		if err != nil {
			return nil, shared.NewTransientError(err, "scan library row")
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewTransientError(err, "iterate libraries")
	}
	return out, nil
}

// UpdateStatistics recomputes a library's rollup from its contained,
// non-deleted collections. The rollup changes only when this is called;
// collection writes and the scan pipeline do not call it.
func (s *LibraryStore) UpdateStatistics(ctx context.Context, id collections.ID) error {
	db := GetDBTX(ctx, s.pool)
	var totalCollections, totalMediaItems int
	var totalSize int64
	err := db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_items), 0), COALESCE(SUM(total_size), 0)
		FROM collections WHERE library_id = $1 AND deleted = false
	`, id.String()).Scan(&totalCollections, &totalMediaItems, &totalSize)
	if err != nil {
		return shared.NewTransientError(err, "compute library statistics")
	}

	tag, err := db.Exec(ctx, `
		UPDATE libraries SET total_collections = $1, total_media_items = $2, total_size = $3, updated_at = $4
		WHERE id = $5
	`, totalCollections, totalMediaItems, totalSize, time.Now().UTC(), id.String())
	if err != nil {
		return shared.NewTransientError(err, "update library statistics")
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("library " + id.String() + " not found")
	}
	return nil
}
