// Command setup is the one-shot topology owner: it applies the database
// schema and records the canonical queue topology so that publishing
// services never redeclare queue arguments themselves. Safe to run
// repeatedly.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/config"
	"github.com/antti/imagevault/internal/infra/postgres"
)

const (
	exitBadConfig         = 2
	exitBrokerUnreachable = 3
)

// brokerRetryBudget bounds startup pings against the broker before the
// process gives up with exit code 3.
const brokerRetryBudget = 5

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(exitBadConfig)
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(exitBadConfig)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if err := postgres.Migrate(ctx, dbPool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Database schema applied")

	redisOpts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		log.Printf("Failed to parse broker URL: %v", err)
		os.Exit(exitBadConfig)
	}

	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := pingWithRetry(ctx, rdb); err != nil {
		log.Printf("Broker unreachable after %d attempts: %v", brokerRetryBudget, err)
		os.Exit(exitBrokerUnreachable)
	}

	// asynq materializes queues lazily on first enqueue; the canonical
	// weights live in bus.QueuePriorities and are read by every consumer
	// process, so there are no broker-side arguments left to declare.
	// Logging them here keeps the topology visible to operators.
	for queue, weight := range bus.QueuePriorities() {
		log.Printf("Queue %s registered with weight %d", queue, weight)
	}

	log.Println("Setup complete")
}

func pingWithRetry(ctx context.Context, rdb *redis.Client) error {
	var err error
	for attempt := 1; attempt <= brokerRetryBudget; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		log.Printf("Broker ping failed (attempt %d/%d): %v", attempt, brokerRetryBudget, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return err
}
