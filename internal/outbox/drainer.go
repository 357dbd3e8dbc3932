package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/metrics"
)

const (
	DefaultDrainInterval = time.Second
	DefaultBatchSize     = 50
	DefaultMaxAttempts   = 10
)

// Drainer is the background re-publisher: it claims pending rows and
// pushes them to the broker, keeping publish retries off the request path.
type Drainer struct {
	store    *Store
	producer *events.Producer
	logger   *slog.Logger

	interval    time.Duration
	batchSize   int
	maxAttempts int

	brokerHealthy atomic.Bool
	wg            sync.WaitGroup
}

// DrainerOptions tunes the drainer; zero values fall back to defaults.
type DrainerOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func NewDrainer(store *Store, producer *events.Producer, logger *slog.Logger, opts DrainerOptions) *Drainer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDrainInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	d := &Drainer{
		store:       store,
		producer:    producer,
		logger:      logger,
		interval:    opts.Interval,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
	}
	d.brokerHealthy.Store(true)
	return d
}

// Run drains until the context is cancelled. It never returns an error:
// publish failures are recorded per row and retried on later ticks.
func (d *Drainer) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// BrokerHealthy reports whether the last publish attempt succeeded; the
// identity health endpoint surfaces broker degradation through it.
func (d *Drainer) BrokerHealthy() bool {
	return d.brokerHealthy.Load()
}

// Wait blocks until Run has returned, for orderly shutdown.
func (d *Drainer) Wait() {
	d.wg.Wait()
}

func (d *Drainer) drainOnce(ctx context.Context) {
	for {
		rows, err := d.store.ClaimPending(ctx, d.batchSize)
		if err != nil {
			d.logger.Error("outbox claim failed", "error", err)
			return
		}
		if len(rows) == 0 {
			return
		}

		for _, row := range rows {
			env := events.Envelope{
				Topic:        row.Topic,
				PartitionKey: row.PartitionKey,
				EventType:    row.EventType,
				Payload:      row.Payload,
				ProducedAt:   row.CreatedAt,
			}
			if err := d.producer.PublishEnvelope(ctx, row.ID, env); err != nil {
				d.brokerHealthy.Store(false)
				metrics.OutboxPublishFailures.Inc()
				d.logger.Error("outbox publish failed",
					"outbox_id", row.ID,
					"topic", row.Topic,
					"attempt", row.AttemptCount+1,
					"error", err,
				)
				if markErr := d.store.MarkFailed(ctx, row.ID, err, d.maxAttempts); markErr != nil {
					d.logger.Error("outbox mark-failed failed", "outbox_id", row.ID, "error", markErr)
				}
				// Back off for the rest of this tick; the broker is
				// likely down for the whole batch.
				return
			}

			d.brokerHealthy.Store(true)
			metrics.OutboxPublished.Inc()
			if err := d.store.MarkSent(ctx, row.ID); err != nil {
				// The publish went out but the mark failed; the row will
				// be republished and the consumer's idempotence absorbs
				// the duplicate. That is the at-least-once contract.
				d.logger.Error("outbox mark-sent failed", "outbox_id", row.ID, "error", err)
			}
		}

		if len(rows) < d.batchSize {
			return
		}
	}
}
