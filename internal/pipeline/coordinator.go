package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/comic-archiver/internal/clock/system"
	"github.com/JakeFAU/comic-archiver/internal/comics"
	runid "github.com/JakeFAU/comic-archiver/internal/id/uuid"
	"github.com/JakeFAU/comic-archiver/internal/metrics"
	"github.com/JakeFAU/comic-archiver/internal/progress"
	"github.com/JakeFAU/comic-archiver/internal/queue/memory"
	"github.com/JakeFAU/comic-archiver/internal/retry"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultWorkers         = 20
	DefaultMaxItemAttempts = 3
	DefaultCommitEvery     = 50
	DefaultItemBackoff     = 2 * time.Second
)

// Resolver finds and downloads archived captures. *archive.Resolver
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, date time.Time) (comics.Snapshot, error)
	Page(ctx context.Context, snapshot comics.Snapshot) ([]byte, error)
	Asset(ctx context.Context, assetURL string) ([]byte, error)
	AssetURL(snapshot comics.Snapshot, ref string) string
}

// Extractor recovers metadata from an archived page.
type Extractor interface {
	Extract(page []byte) (comics.Metadata, error)
}

// Config carries the run parameters.
type Config struct {
	Start time.Time
	End   time.Time
	// Workers is K, the number of concurrent item pipelines.
	Workers         int
	MaxItemAttempts int
	// CommitEvery commits the store after this many upserts.
	CommitEvery int
	// QueueDepth bounds the work queue; it defaults to 2*Workers.
	QueueDepth int
	// ItemBackoff is the base delay before an item is retried from PENDING.
	ItemBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxItemAttempts <= 0 {
		c.MaxItemAttempts = DefaultMaxItemAttempts
	}
	if c.CommitEvery <= 0 {
		c.CommitEvery = DefaultCommitEvery
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 2 * c.Workers
	}
	if c.ItemBackoff <= 0 {
		c.ItemBackoff = DefaultItemBackoff
	}
	return c
}

// Deps are the collaborators injected into a Coordinator. Emitter, Clock,
// IDs, Logger, and Sleep are optional.
type Deps struct {
	Store     comics.Store
	Assets    comics.AssetStore
	Resolver  Resolver
	Extractor Extractor
	Emitter   progress.Emitter
	Clock     comics.Clock
	IDs       comics.IDGenerator
	Logger    *zap.Logger
	Sleep     retry.SleepFunc
}

// Coordinator runs the archive pipeline for one date range.
type Coordinator struct {
	cfg       Config
	store     comics.Store
	assets    comics.AssetStore
	resolver  Resolver
	extractor Extractor
	emitter   progress.Emitter
	clock     comics.Clock
	ids       comics.IDGenerator
	logger    *zap.Logger
	sleep     retry.SleepFunc

	upserts atomic.Int64
	runID   [16]byte
	batch   *uncommitted
}

// New validates the configuration and wires the collaborators.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	switch {
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Assets == nil:
		return nil, errors.New("asset store is required")
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("range end %s is before start %s",
			comics.FormatDate(cfg.End), comics.FormatDate(cfg.Start))
	}
	c := &Coordinator{
		cfg:       cfg,
		store:     deps.Store,
		assets:    deps.Assets,
		resolver:  deps.Resolver,
		extractor: deps.Extractor,
		emitter:   deps.Emitter,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    deps.Logger,
		sleep:     deps.Sleep,
	}
	if c.emitter == nil {
		c.emitter = progress.NopEmitter{}
	}
	if c.clock == nil {
		c.clock = system.New()
	}
	if c.ids == nil {
		c.ids = runid.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.sleep == nil {
		c.sleep = retry.Sleep
	}
	return c, nil
}

// Run processes every date in the range and returns the per-outcome summary.
// Canceling ctx stops the producer; dates still queued are counted as
// canceled while in-flight dates finish. Pending upserts are committed
// before Run returns.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Summary{}, err
	}
	parsed, err := uuid.Parse(runID)
	if err != nil {
		return Summary{}, fmt.Errorf("parse run id: %w", err)
	}
	c.runID = progress.UUIDToBytes(parsed)

	dates := comics.DateRange(c.cfg.Start, c.cfg.End)
	started := c.clock.Now()
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("archive run starting",
		zap.String("start", comics.FormatDate(c.cfg.Start)),
		zap.String("end", comics.FormatDate(c.cfg.End)),
		zap.Int("dates", len(dates)),
		zap.Int("workers", c.cfg.Workers),
	)
	c.emitter.Emit(progress.Event{RunID: c.runID, TS: started, Stage: progress.StageRunStart, Total: len(dates)})

	results := newTally()
	c.batch = newUncommitted(results)
	q := memory.NewQueue[WorkItem](c.cfg.QueueDepth)

	var g errgroup.Group
	g.Go(func() error {
		defer q.Close()
		for i, date := range dates {
			if err := q.Enqueue(ctx, WorkItem{Date: date, Attempt: 1, Stage: StagePending}); err != nil {
				results.add(comics.ItemCanceled, len(dates)-i)
				logger.Info("producer stopped", zap.Int("not_enqueued", len(dates)-i))
				return nil
			}
		}
		return nil
	})
	for range c.cfg.Workers {
		g.Go(func() error {
			c.work(ctx, q, results, logger)
			return nil
		})
	}
	_ = g.Wait()

	commitErr := c.commit(context.WithoutCancel(ctx))

	elapsed := c.clock.Now().Sub(started)
	summary := Summary{
		RunID:   runID,
		Total:   len(dates),
		Counts:  results.snapshot(),
		Elapsed: elapsed,
	}
	c.emitter.Emit(progress.Event{RunID: c.runID, TS: c.clock.Now(), Stage: progress.StageRunDone, Dur: max(elapsed, 0)})
	logger.Info("archive run finished",
		zap.Int("completed", summary.Count(comics.ItemCompleted)),
		zap.Int("already_complete", summary.Count(comics.ItemAlreadyComplete)),
		zap.Int("skipped_no_snapshot", summary.Count(comics.ItemSkippedNoSnapshot)),
		zap.Int("asset_missing", summary.Count(comics.ItemAssetMissing)),
		zap.Int("failed", summary.Count(comics.ItemFailed)),
		zap.Int("canceled", summary.Count(comics.ItemCanceled)),
		zap.Duration("elapsed", elapsed),
	)

	if commitErr != nil {
		return summary, fmt.Errorf("commit store: %w", commitErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// work drains q until it is closed. Items dequeued after cancellation are
// settled as canceled without touching the network.
func (c *Coordinator) work(ctx context.Context, q *memory.Queue[WorkItem], results *tally, logger *zap.Logger) {
	for {
		item, err := q.Dequeue(context.WithoutCancel(ctx))
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			c.settle(item, comics.ItemCanceled, c.clock.Now(), "", results)
			continue
		}
		c.process(ctx, item, results, logger)
	}
}

// process runs one item to a terminal state. It ignores cancellation of ctx
// so a date is never abandoned halfway.
func (c *Coordinator) process(ctx context.Context, item WorkItem, results *tally, logger *zap.Logger) {
	metrics.IncInflight()
	defer metrics.DecInflight()

	workCtx := context.WithoutCancel(ctx)
	started := c.clock.Now()
	date := comics.FormatDate(item.Date)
	for {
		outcome, err := c.processOnce(workCtx, &item, logger)
		if err == nil {
			item.Stage = StageDone
			c.settle(item, outcome, started, "", results)
			return
		}
		if isTerminal(err) || item.Attempt >= c.cfg.MaxItemAttempts {
			logger.Error("date failed",
				zap.String("date", date),
				zap.Stringer("stage", item.Stage),
				zap.Int("attempt", item.Attempt),
				zap.Error(err),
			)
			item.Stage = StageFailed
			c.settle(item, comics.ItemFailed, started, err.Error(), results)
			return
		}

		delay := c.itemBackoff(item.Attempt)
		metrics.ObserveRetry("item")
		logger.Warn("date failed, requeueing",
			zap.String("date", date),
			zap.Stringer("stage", item.Stage),
			zap.Int("attempt", item.Attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := c.sleep(workCtx, delay); sleepErr != nil {
			item.Stage = StageFailed
			c.settle(item, comics.ItemFailed, started, sleepErr.Error(), results)
			return
		}
		item.Attempt++
		item.Stage = StagePending
	}
}

// processOnce walks one attempt through the state machine. A nil error means
// the returned outcome is terminal.
func (c *Coordinator) processOnce(ctx context.Context, item *WorkItem, logger *zap.Logger) (comics.ItemOutcome, error) {
	date := comics.FormatDate(item.Date)
	assetPath := comics.AssetPath(item.Date)

	item.Stage = StagePending
	rowExists, err := c.store.RecordExists(ctx, date)
	if err != nil {
		return "", fmt.Errorf("check record: %w", err)
	}
	fileExists, err := c.assets.Exists(ctx, assetPath)
	if err != nil {
		return "", fmt.Errorf("check asset: %w", err)
	}
	if rowExists && fileExists {
		return comics.ItemAlreadyComplete, nil
	}

	item.Stage = StageResolving
	snapshot, err := c.resolver.Resolve(ctx, item.Date)
	if errors.Is(err, comics.ErrNoSnapshot) {
		logger.Info("no archived snapshot", zap.String("date", date))
		return comics.ItemSkippedNoSnapshot, nil
	}
	if err != nil {
		return "", err
	}
	page, err := c.resolver.Page(ctx, snapshot)
	if err != nil {
		return "", err
	}

	item.Stage = StageExtracting
	meta, err := c.extractor.Extract(page)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", date, err)
	}
	if !meta.HasMetadata {
		logger.Warn("metadata container missing", zap.String("date", date), zap.String("page", snapshot.PageURL))
	}

	item.Stage = StagePersisting
	if !rowExists {
		if err := c.store.Upsert(ctx, comics.NewRecord(item.Date, meta.Transcript), meta.Tags); err != nil {
			return "", fmt.Errorf("persist %s: %w", date, err)
		}
		c.batch.upserted(date)
		if err := c.maybeCommit(ctx); err != nil {
			return "", err
		}
	}
	if fileExists {
		return comics.ItemCompleted, nil
	}

	item.Stage = StageAssetFetching
	if meta.AssetRef == "" {
		logger.Warn("image reference missing", zap.String("date", date), zap.String("page", snapshot.PageURL))
		return comics.ItemAssetMissing, nil
	}
	assetURL := c.resolver.AssetURL(snapshot, meta.AssetRef)
	data, err := c.resolver.Asset(ctx, assetURL)
	if err != nil {
		if comics.IsPermanent(err) {
			logger.Warn("archived image unavailable", zap.String("date", date), zap.String("url", assetURL), zap.Error(err))
			return comics.ItemAssetMissing, nil
		}
		return "", err
	}
	if _, err := c.assets.Put(ctx, assetPath, data); err != nil {
		return "", fmt.Errorf("write asset %s: %w", assetPath, err)
	}
	return comics.ItemCompleted, nil
}

func (c *Coordinator) maybeCommit(ctx context.Context) error {
	n := c.upserts.Add(1)
	if n%int64(c.cfg.CommitEvery) != 0 {
		return nil
	}
	if err := c.commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	c.logger.Debug("committed batch", zap.Int64("upserts", n))
	return nil
}

// commit flushes the store. On failure the rows of every tracked date are
// gone, so their outcomes are corrected and the next run picks them up.
func (c *Coordinator) commit(ctx context.Context) error {
	pending := c.batch.snapshot()
	if err := c.store.Commit(ctx); err != nil {
		moved := c.batch.dropped(pending)
		sort.Strings(pending)
		c.logger.Error("commit failed, upserts discarded",
			zap.Int("dates", len(pending)),
			zap.Int("recounted_failed", moved),
			zap.Strings("pending", pending),
			zap.Error(err),
		)
		return err
	}
	c.batch.committed(pending)
	return nil
}

func (c *Coordinator) itemBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return c.cfg.ItemBackoff << (attempt - 1)
}

func (c *Coordinator) settle(item WorkItem, outcome comics.ItemOutcome, started time.Time, note string, results *tally) {
	outcome = c.batch.settle(comics.FormatDate(item.Date), outcome)
	results.add(outcome, 1)
	now := c.clock.Now()
	c.emitter.Emit(progress.Event{
		RunID:    c.runID,
		TS:       now,
		Stage:    progress.StageItemDone,
		Date:     comics.FormatDate(item.Date),
		Outcome:  outcome,
		Attempts: item.Attempt,
		Dur:      max(now.Sub(started), 0),
		Note:     note,
	})
}

// isTerminal reports errors the outer item retry cannot fix: the inner retry
// budget is already spent, or the resource is known to be gone.
func isTerminal(err error) bool {
	return errors.Is(err, comics.ErrRetryExhausted) || comics.IsPermanent(err)
}
