// Package dispatch publishes outbox events after the mutation that recorded
// them has committed. Delivery is at least once: a row is marked published
// only after its publisher accepted it.
package dispatch

import (
	"context"
	"time"

	"shop-admin/internal/broadcast"
	"shop-admin/internal/domain"
	"shop-admin/internal/metrics"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outbox is the event store the dispatcher drains
type Outbox interface {
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*domain.Event, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, cause error, availableAt time.Time) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

// Config tunes the dispatcher
type Config struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is the number of claims after which an event is failed
	MaxAttempts int
	// Lease hides a claimed event from other workers while it is published
	Lease time.Duration
	// PublishRetries and RetryBase drive the in-process retries of a single claim
	PublishRetries uint64
	RetryBase      time.Duration
	// PublishTimeout bounds one publish call
	PublishTimeout time.Duration
	PruneSchedule  string
	Retention      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	return c
}

// Outcomes recorded per publish attempt
const (
	ResultPublished = "published"
	ResultRetried   = "retried"
	ResultFailed    = "failed"
)

// Dispatcher moves outbox events to a broadcast publisher
type Dispatcher struct {
	outbox    Outbox
	publisher broadcast.Publisher
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	kick      chan struct{}
	now       func() time.Time
}

// New creates a Dispatcher. m may be nil.
func New(outbox Outbox, publisher broadcast.Publisher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		metrics:   m,
		kick:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Notify wakes an idle worker so a freshly committed event goes out without
// waiting for the next poll. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run starts the workers and the pruner and blocks until ctx is canceled
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return d.work(ctx, worker)
		})
	}

	if d.cfg.PruneSchedule != "" && d.cfg.Retention > 0 {
		g.Go(func() error {
			return d.runPruner(ctx)
		})
	}

	d.logger.Info("Event dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain while full batches keep coming
		for {
			n, err := d.DispatchOnce(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				d.logger.Error("Failed to dispatch outbox events", zap.Error(err), zap.Int("worker", worker))
				break
			}
			if n < d.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.reportPending(ctx)
		case <-d.kick:
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of
// events claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.ClaimBatch(ctx, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}

	for _, ev := range events {
		if err := d.dispatch(ctx, ev); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev *domain.Event) error {
	msg := broadcast.Message{
		Channel:        ev.Channel,
		Event:          ev.Name,
		Data:           ev.Payload,
		ExceptSocketID: ev.ExcludeSocketID,
	}

	backoff := retry.WithMaxRetries(d.cfg.PublishRetries, retry.NewExponential(d.cfg.RetryBase))
	pubErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
		defer cancel()
		if err := d.publisher.Publish(pctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	if pubErr == nil {
		d.record(ev, ResultPublished)
		return d.outbox.MarkPublished(ctx, ev.ID)
	}
	if ctx.Err() != nil {
		// shutting down; the lease expires and another run picks it up
		return nil
	}

	pubErr = errors.Mark(errors.Wrapf(pubErr, "publishing %s on %s", ev.Name, ev.Channel), domain.ErrPublish)

	if ev.Attempts >= d.cfg.MaxAttempts {
		d.record(ev, ResultFailed)
		d.logger.Error("Giving up on outbox event",
			zap.Error(pubErr),
			zap.Int64("event_id", ev.ID),
			zap.String("channel", ev.Channel),
			zap.String("event", ev.Name),
			zap.Int("attempts", ev.Attempts),
		)
		return d.outbox.MarkFailed(ctx, ev.ID, pubErr)
	}

	d.record(ev, ResultRetried)
	d.logger.Warn("Outbox event publish failed, rescheduling",
		zap.Error(pubErr),
		zap.Int64("event_id", ev.ID),
		zap.String("event", ev.Name),
		zap.Int("attempts", ev.Attempts),
	)
	return d.outbox.MarkRetry(ctx, ev.ID, pubErr, d.now().Add(RetryDelay(ev.Attempts, d.cfg.PollInterval)))
}

// RetryDelay is the wait before claim number attempts+1: the poll interval
// doubled per previous attempt, capped at one hour.
func RetryDelay(attempts int, base time.Duration) time.Duration {
	const maxDelay = time.Hour
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func (d *Dispatcher) record(ev *domain.Event, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.OutboxPublished.WithLabelValues(ev.Channel, ev.Name, result).Inc()
}

func (d *Dispatcher) reportPending(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	n, err := d.outbox.CountPending(ctx)
	if err != nil {
		return
	}
	d.metrics.OutboxPending.Set(float64(n))
}

// Prune deletes events published longer than the retention ago
func (d *Dispatcher) Prune(ctx context.Context) (int64, error) {
	n, err := d.outbox.PruneDelivered(ctx, d.now().Add(-d.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if d.metrics != nil {
		d.metrics.OutboxPruned.Add(float64(n))
	}
	return n, nil
}

func (d *Dispatcher) runPruner(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(d.cfg.PruneSchedule, func() {
		n, err := d.Prune(ctx)
		if err != nil {
			d.logger.Error("Failed to prune outbox", zap.Error(err))
			return
		}
		d.logger.Info("Pruned outbox", zap.Int64("deleted", n))
	})
	if err != nil {
		return errors.Wrapf(err, "invalid prune schedule %q", d.cfg.PruneSchedule)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
