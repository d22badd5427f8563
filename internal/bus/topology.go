// Package bus binds the topic-addressed message bus onto hibiken/asynq.
// Queues become asynq named queues (with weighted priority, since asynq
// has no per-message priority field), routing keys become task type
// strings, the message timeout becomes asynq.Timeout (a limit on each
// processing attempt; queued messages do not expire by age), and the
// dead-letter exchange becomes asynq's archive-on-exhausted-retries plus
// an explicit dlq queue operators can inspect.
package bus

// Queue names, one per pipeline stage.
const (
	QueueCollectionScan      = "collection_scan"
	QueueImageProcessing     = "image_processing"
	QueueThumbnailGeneration = "thumbnail_generation"
	QueueCacheGeneration     = "cache_generation"
	QueueCollectionCreation  = "collection_creation"
	QueueBulkOperation       = "bulk_operation"
	QueueLibraryScan         = "library_scan"
	QueueDLQ                 = "dlq"
)

// Task types, doubling as routing keys.
const (
	TypeCollectionScan      = "collection.scan"
	TypeImageProcessing     = "image.processing"
	TypeThumbnailGeneration = "thumbnail.generation"
	TypeCacheGeneration     = "cache.generation"
	TypeCollectionCreation  = "collection.creation"
	TypeBulkOperation       = "bulk.operation"
	TypeLibraryScan         = "library_scan_queue"
)

// QueuePriorities is the weighted-queue configuration asynq.Config.Queues
// expects. Higher weight means a larger share of worker capacity; asynq
// schedules by queue weight rather than per-message priority.
func QueuePriorities() map[string]int {
	return map[string]int{
		QueueCollectionScan:      5,
		QueueImageProcessing:     6,
		QueueThumbnailGeneration: 4,
		QueueCacheGeneration:     4,
		QueueCollectionCreation:  3,
		QueueBulkOperation:       2,
		QueueLibraryScan:         3,
		QueueDLQ:                 1,
	}
}
