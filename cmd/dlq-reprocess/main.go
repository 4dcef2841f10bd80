package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/storage/postgres"
)

const (
	defaultReplayLimit = 100
	defaultTimeout     = 30 * time.Second
)

type config struct {
	dsn     string
	limit   int
	execute bool
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := run(ctx, cfg, postgres.NewDLQStore(store)); err != nil {
		fail("dlq reprocess failed: %v", err)
	}
}

func readConfig() (config, error) {
	var cfg config

	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: APP__DB_DSN)")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ entries to scan/requeue")
	flag.BoolVar(&cfg.execute, "execute", false, "requeue entries into outbox; default is dry-run")
	flag.Parse()

	_ = godotenv.Load()

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("APP__DB_DSN"))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("APP__DB_DSN (or -dsn) is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}

	return cfg, nil
}

// run перебирает записи DLQ и в режиме execute возвращает каждую в outbox
// на новый круг публикации. В dry-run только перечисляет кандидатов.
func run(ctx context.Context, cfg config, dlq domain.DLQStore) error {
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":  mode,
		"limit": cfg.limit,
	}).Info("starting dlq reprocess")

	entries, err := dlq.List(ctx, cfg.limit)
	if err != nil {
		return fmt.Errorf("list dlq entries: %w", err)
	}
	if len(entries) == 0 {
		log.Info("dead letter queue is empty")
		return nil
	}

	var requeued int
	for _, entry := range entries {
		fields := log.Fields{
			"id":           entry.ID,
			"event_type":   entry.OriginalEventType,
			"retry_count":  entry.RetryCount,
			"reason":       entry.FailureReason,
			"moved_to_dlq": entry.MovedToDLQAt.Format(time.RFC3339),
		}

		if !cfg.execute {
			log.WithFields(fields).Info("dlq requeue candidate")
			requeued++
			continue
		}

		if err := dlq.Requeue(ctx, entry.ID); err != nil {
			return fmt.Errorf("requeue dlq entry %d: %w", entry.ID, err)
		}
		log.WithFields(fields).Info("dlq entry requeued")
		requeued++
	}

	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  len(entries),
		"requeued": requeued,
	}).Info("dlq reprocess finished")

	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
