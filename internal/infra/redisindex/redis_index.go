// Package redisindex is the concrete NavigationIndex implementation,
// backed by Redis sorted sets and string keys. Every key is derived from
// CollectionStore, so a miss or a corrupted key is always recoverable
// with Rebuild.
//
// Key layout:
//
//	collection_index:sorted:primary:<sortField>:<dir>   ZSET of collection ids
//	collection_index:sorted:by_library:<libraryId>:<sortField>:<dir>  ZSET
//	collection_index:sorted:by_type:<type>:<sortField>:<dir>          ZSET
//	collection_index:data:summary:<id>                  STRING (JSON blob)
//	collection_index:thumb:<id>                         STRING (blob cache)
//
// Descending sorted sets store negated scores at write time, so every
// read is a plain ascending ZRANGE/ZRANK regardless of the
// direction the caller asked for.
package redisindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/navindex"
)

const (
	keyPrimary   = "collection_index:sorted:primary"
	keyByLibrary = "collection_index:sorted:by_library"
	keyByType    = "collection_index:sorted:by_type"
	keySummary   = "collection_index:data:summary"
	keyThumb     = "collection_index:thumb"

	// maxThumbnailTTL is the upper bound on the thumbnail blob cache's
	// TTL; callers asking for longer are clamped down to it.
	maxThumbnailTTL = 30 * 24 * time.Hour
)

func clampThumbnailTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > maxThumbnailTTL {
		return maxThumbnailTTL
	}
	return ttl
}

// RedisIndex implements navindex.Index against a *redis.Client.
type RedisIndex struct {
	client *redis.Client
}

// New builds a RedisIndex.
func New(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func primaryKey(field navindex.SortField, dir navindex.SortDirection) string {
	return fmt.Sprintf("%s:%s:%s", keyPrimary, field, dir)
}

func libraryKey(libraryID string, field navindex.SortField, dir navindex.SortDirection) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyByLibrary, libraryID, field, dir)
}

func typeKey(t collections.Type, field navindex.SortField, dir navindex.SortDirection) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyByType, t, field, dir)
}

func summaryKey(id string) string {
	return fmt.Sprintf("%s:%s", keySummary, id)
}

func thumbKey(id string) string {
	return fmt.Sprintf("%s:%s", keyThumb, id)
}

// score computes a sort field's numeric score for a summary. Descending
// sets get the negated score so every read stays a plain ascending scan.
func score(s navindex.CollectionSummary, field navindex.SortField, dir navindex.SortDirection) float64 {
	var v float64
	switch field {
	case collections.SortUpdatedAt:
		v = float64(s.UpdatedAt.Unix())
	case collections.SortCreatedAt:
		v = float64(s.CreatedAt.Unix())
	case collections.SortImageCount:
		v = float64(s.ImageCount)
	case collections.SortTotalSize:
		v = float64(s.TotalSize)
	case collections.SortName:
		v = nameScore(s.Name)
	default:
		v = float64(s.UpdatedAt.Unix())
	}
	if dir == collections.Descending {
		return -v
	}
	return v
}

// nameScore packs the first 8 bytes of the lowercased name into a
// big-endian integer, approximating lexicographic order numerically so
// names can share the same ZSET machinery as the numeric sort fields.
func nameScore(name string) float64 {
	var packed uint64
	for i := 0; i < 8; i++ {
		packed <<= 8
		if i < len(name) {
			c := name[i]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			packed |= uint64(c)
		}
	}
	return float64(packed)
}

// Rebuild clears and repopulates every sorted set and summary hash from
// a full CollectionStore scan. The thumbnail blob cache is left intact.
func (r *RedisIndex) Rebuild(ctx context.Context, colls []collections.Collection) (navindex.RebuildStats, error) {
	if err := r.clearSortedAndSummaries(ctx); err != nil {
		return navindex.RebuildStats{}, err
	}

	pipe := r.client.Pipeline()
	for _, c := range colls {
		if err := addToPipe(ctx, pipe, navindex.SummaryFrom(c)); err != nil {
			return navindex.RebuildStats{}, err
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return navindex.RebuildStats{}, fmt.Errorf("redisindex: rebuild exec: %w", err)
	}

	return navindex.RebuildStats{Total: len(colls), LastRebuilt: time.Now()}, nil
}

func (r *RedisIndex) clearSortedAndSummaries(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "collection_index:sorted:*", 500).Result()
		if err != nil {
			return fmt.Errorf("redisindex: scan sorted keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redisindex: del sorted keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	cursor = 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "collection_index:data:*", 500).Result()
		if err != nil {
			return fmt.Errorf("redisindex: scan summary keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redisindex: del summary keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// addToPipe stages the ZADD/HSET calls for one summary onto a pipeline.
func addToPipe(ctx context.Context, pipe redis.Pipeliner, s navindex.CollectionSummary) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redisindex: marshal summary %s: %w", s.ID, err)
	}
	pipe.Set(ctx, summaryKey(s.ID), blob, 0)

	for _, field := range navindex.SortFields() {
		for _, dir := range navindex.Directions() {
			sc := score(s, field, dir)
			pipe.ZAdd(ctx, primaryKey(field, dir), redis.Z{Score: sc, Member: s.ID})
			if s.LibraryID != "" {
				pipe.ZAdd(ctx, libraryKey(s.LibraryID, field, dir), redis.Z{Score: sc, Member: s.ID})
			}
			pipe.ZAdd(ctx, typeKey(collections.Type(s.Type), field, dir), redis.Z{Score: sc, Member: s.ID})
		}
	}
	return nil
}

// removeFromPipe is addToPipe's inverse, used by both Remove and the
// stale-membership cleanup inside Upsert.
func removeFromPipe(ctx context.Context, pipe redis.Pipeliner, id string, libraryID string, t collections.Type) {
	pipe.Del(ctx, summaryKey(id))
	for _, field := range navindex.SortFields() {
		for _, dir := range navindex.Directions() {
			pipe.ZRem(ctx, primaryKey(field, dir), id)
			if libraryID != "" {
				pipe.ZRem(ctx, libraryKey(libraryID, field, dir), id)
			}
			pipe.ZRem(ctx, typeKey(t, field, dir), id)
		}
	}
}

// Upsert rewrites one collection's entry across every sorted set. It
// first removes the previous membership (read from the existing
// summary, if any) so a LibraryID or Type change doesn't leave the
// collection indexed under its old scope.
func (r *RedisIndex) Upsert(ctx context.Context, c collections.Collection) error {
	s := navindex.SummaryFrom(c)

	pipe := r.client.Pipeline()
	if prev, err := r.getSummary(ctx, s.ID); err == nil {
		removeFromPipe(ctx, pipe, prev.ID, prev.LibraryID, collections.Type(prev.Type))
	}
	if err := addToPipe(ctx, pipe, s); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisindex: upsert exec: %w", err)
	}
	return nil
}

// Remove deletes a collection's summary and every sorted-set membership.
func (r *RedisIndex) Remove(ctx context.Context, id collections.ID) error {
	idStr := id.String()
	prev, err := r.getSummary(ctx, idStr)
	if err != nil {
		return nil
	}
	pipe := r.client.Pipeline()
	removeFromPipe(ctx, pipe, idStr, prev.LibraryID, collections.Type(prev.Type))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisindex: remove exec: %w", err)
	}
	return nil
}

func (r *RedisIndex) getSummary(ctx context.Context, id string) (navindex.CollectionSummary, error) {
	raw, err := r.client.Get(ctx, summaryKey(id)).Bytes()
	if err != nil {
		return navindex.CollectionSummary{}, err
	}
	var s navindex.CollectionSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return navindex.CollectionSummary{}, fmt.Errorf("redisindex: unmarshal summary %s: %w", id, err)
	}
	return s, nil
}

func (r *RedisIndex) getSummaries(ctx context.Context, ids []string) ([]navindex.CollectionSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = summaryKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisindex: mget summaries: %w", err)
	}
	out := make([]navindex.CollectionSummary, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var s navindex.CollectionSummary
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// GetNavigation returns a collection's position among its siblings plus
// its immediate prev/next neighbors in the requested order.
func (r *RedisIndex) GetNavigation(ctx context.Context, id collections.ID, sort navindex.SortField, dir navindex.SortDirection) (navindex.NavigationResult, error) {
	key := primaryKey(sort, dir)
	idStr := id.String()

	rank, err := r.client.ZRank(ctx, key, idStr).Result()
	if err != nil {
		if err == redis.Nil {
			return navindex.NavigationResult{}, fmt.Errorf("redisindex: %s not indexed", idStr)
		}
		return navindex.NavigationResult{}, fmt.Errorf("redisindex: zrank: %w", err)
	}
	total, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return navindex.NavigationResult{}, fmt.Errorf("redisindex: zcard: %w", err)
	}

	res := navindex.NavigationResult{Position: int(rank) + 1, Total: int(total)}
	neighborIDs, err := r.client.ZRange(ctx, key, max64(rank-1, 0), rank+1).Result()
	if err != nil {
		return navindex.NavigationResult{}, fmt.Errorf("redisindex: zrange neighbors: %w", err)
	}
	summaries, err := r.getSummaries(ctx, neighborIDs)
	if err != nil {
		return navindex.NavigationResult{}, err
	}
	byID := make(map[string]navindex.CollectionSummary, len(summaries))
	for _, s := range summaries {
		byID[s.ID] = s
	}
	if rank > 0 {
		if prevID := neighborIDs[0]; prevID != idStr {
			if s, ok := byID[prevID]; ok {
				res.Prev = &s
			}
		}
	}
	if last := neighborIDs[len(neighborIDs)-1]; last != idStr {
		if s, ok := byID[last]; ok {
			res.Next = &s
		}
	}
	return res, nil
}

// GetSiblings returns a page of summaries around id's position. Page 1
// is special-cased to mean "the page containing id"; any other page is
// honored literally.
func (r *RedisIndex) GetSiblings(ctx context.Context, id collections.ID, page, pageSize int, sort navindex.SortField, dir navindex.SortDirection) (navindex.SiblingsResult, error) {
	key := primaryKey(sort, dir)
	idStr := id.String()

	rank, err := r.client.ZRank(ctx, key, idStr).Result()
	if err != nil {
		if err == redis.Nil {
			return navindex.SiblingsResult{}, fmt.Errorf("redisindex: %s not indexed", idStr)
		}
		return navindex.SiblingsResult{}, fmt.Errorf("redisindex: zrank: %w", err)
	}

	if page <= 1 {
		page = int(rank)/pageSize + 1
	}

	p, err := r.page(ctx, key, page, pageSize)
	if err != nil {
		return navindex.SiblingsResult{}, err
	}
	return navindex.SiblingsResult{Summaries: p.Summaries, Position: int(rank) + 1, Page: page, Total: p.Total}, nil
}

// GetPage returns one page across the whole primary sorted set.
func (r *RedisIndex) GetPage(ctx context.Context, page, pageSize int, sort navindex.SortField, dir navindex.SortDirection) (navindex.PageResult, error) {
	return r.page(ctx, primaryKey(sort, dir), page, pageSize)
}

// GetByLibrary returns one page scoped to a library.
func (r *RedisIndex) GetByLibrary(ctx context.Context, libraryID collections.ID, page, pageSize int, sort navindex.SortField, dir navindex.SortDirection) (navindex.PageResult, error) {
	return r.page(ctx, libraryKey(libraryID.String(), sort, dir), page, pageSize)
}

// GetByType returns one page scoped to a collection type.
func (r *RedisIndex) GetByType(ctx context.Context, t collections.Type, page, pageSize int, sort navindex.SortField, dir navindex.SortDirection) (navindex.PageResult, error) {
	return r.page(ctx, typeKey(t, sort, dir), page, pageSize)
}

func (r *RedisIndex) page(ctx context.Context, key string, page, pageSize int) (navindex.PageResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	start := int64((page - 1) * pageSize)
	stop := start + int64(pageSize) - 1

	total, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return navindex.PageResult{}, fmt.Errorf("redisindex: zcard: %w", err)
	}

	ids, err := r.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return navindex.PageResult{}, fmt.Errorf("redisindex: zrange page: %w", err)
	}
	summaries, err := r.getSummaries(ctx, ids)
	if err != nil {
		return navindex.PageResult{}, err
	}
	return navindex.PageResult{Summaries: summaries, Page: page, Total: int(total)}, nil
}

// Count returns the size of the primary index (updatedAt/asc, arbitrary
// choice among the ten equivalent primary sets).
func (r *RedisIndex) Count(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, primaryKey(collections.SortUpdatedAt, collections.Ascending)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisindex: zcard: %w", err)
	}
	return n, nil
}

// CountByLibrary returns the size of a library's scoped set.
func (r *RedisIndex) CountByLibrary(ctx context.Context, libraryID collections.ID) (int64, error) {
	n, err := r.client.ZCard(ctx, libraryKey(libraryID.String(), collections.SortUpdatedAt, collections.Ascending)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisindex: zcard: %w", err)
	}
	return n, nil
}

// CountByType returns the size of a type's scoped set.
func (r *RedisIndex) CountByType(ctx context.Context, t collections.Type) (int64, error) {
	n, err := r.client.ZCard(ctx, typeKey(t, collections.SortUpdatedAt, collections.Ascending)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisindex: zcard: %w", err)
	}
	return n, nil
}

// GetCachedThumbnail returns a cached thumbnail blob, if one exists.
// This cache survives Rebuild; it is cleared only by explicit eviction
// or TTL expiry.
func (r *RedisIndex) GetCachedThumbnail(ctx context.Context, id collections.ID) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, thumbKey(id.String())).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redisindex: get thumb: %w", err)
	}
	return blob, true, nil
}

// SetCachedThumbnail stores a thumbnail blob with a bounded TTL.
func (r *RedisIndex) SetCachedThumbnail(ctx context.Context, id collections.ID, blob []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, thumbKey(id.String()), blob, clampThumbnailTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("redisindex: set thumb: %w", err)
	}
	return nil
}

// BatchCacheThumbnails stores many thumbnail blobs in one round trip.
func (r *RedisIndex) BatchCacheThumbnails(ctx context.Context, blobs map[collections.ID][]byte, ttl time.Duration) error {
	if len(blobs) == 0 {
		return nil
	}
	ttl = clampThumbnailTTL(ttl)
	pipe := r.client.Pipeline()
	for id, blob := range blobs {
		pipe.Set(ctx, thumbKey(id.String()), blob, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisindex: batch set thumb: %w", err)
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
