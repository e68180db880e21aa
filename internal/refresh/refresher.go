// Package refresh runs the periodic refresh cycle: fetch every source,
// merge, diff against the previous snapshot, notify subscribers and swap
// the snapshot.
package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"token-aggregator/internal/aggregation"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
	"token-aggregator/internal/sources"
	"token-aggregator/internal/storage"
)

// Defaults.
const (
	DefaultInterval           = 30 * time.Second
	DefaultFetchTimeout       = 10 * time.Second
	DefaultStopTimeout        = 15 * time.Second
	DefaultTopN               = 50
	DefaultPriceThresholdPct  = 5.0
	DefaultVolumeThresholdPct = 50.0

	stopPollInterval = 50 * time.Millisecond
)

// SnapshotStore holds the current snapshot.
type SnapshotStore interface {
	Current() *domain.Snapshot
	Replace(ctx context.Context, snap *domain.Snapshot) error
}

// Notifier delivers refresh results to realtime subscribers.
type Notifier interface {
	ClientCount() int
	BroadcastSnapshot(snap *domain.Snapshot, topN int)
	BroadcastFilterGroups(snap *domain.Snapshot)
	EmitTokenUpdate(rec domain.AggregatedRecord)
	EmitPriceAlert(ctx context.Context, m domain.PriceMove)
	EmitVolumeSpike(ctx context.Context, m domain.VolumeMove)
}

// Options configures a Refresher. Directory and Runs are optional.
type Options struct {
	Sources   []sources.Source
	Engine    *aggregation.Engine
	Store     SnapshotStore
	Notifier  Notifier
	Directory storage.TokenDirectory
	Runs      storage.RefreshRunStore

	Interval           time.Duration
	FetchTimeout       time.Duration // per source
	StopTimeout        time.Duration
	TopN               int
	PriceThresholdPct  float64
	VolumeThresholdPct float64

	Logger logrus.FieldLogger
}

// Status is a point-in-time view of the refresh loop.
type Status struct {
	Running       bool   `json:"running"`
	Refreshing    bool   `json:"refreshing"`
	Interval      string `json:"interval"`
	Runs          int64  `json:"runs"`
	Skipped       int64  `json:"skipped"`
	LastRunAt     int64  `json:"lastRunAt,omitempty"`     // epoch ms
	LastSuccessAt int64  `json:"lastSuccessAt,omitempty"` // epoch ms
	LastRecords   int    `json:"lastRecords"`
	LastStatus    string `json:"lastStatus,omitempty"`
}

// Refresher owns the refresh cycle. At most one cycle runs at a time.
type Refresher struct {
	sources   []sources.Source
	engine    *aggregation.Engine
	store     SnapshotStore
	notifier  Notifier
	directory storage.TokenDirectory
	runs      storage.RefreshRunStore

	interval     time.Duration
	fetchTimeout time.Duration
	stopTimeout  time.Duration
	topN         int
	priceThresh  float64
	volumeThresh float64

	refreshing atomic.Bool
	runCount   atomic.Int64
	skipCount  atomic.Int64

	mu         sync.Mutex
	cancel     context.CancelFunc
	lastRun    *domain.RefreshRun
	lastOKAt   int64
	lastRecCnt int

	now func() time.Time
	log logrus.FieldLogger
}

// New creates a Refresher with defaults applied.
func New(opts Options) *Refresher {
	if opts.Engine == nil {
		opts.Engine = aggregation.NewEngine(nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.PriceThresholdPct <= 0 {
		opts.PriceThresholdPct = DefaultPriceThresholdPct
	}
	if opts.VolumeThresholdPct <= 0 {
		opts.VolumeThresholdPct = DefaultVolumeThresholdPct
	}

	return &Refresher{
		sources:      opts.Sources,
		engine:       opts.Engine,
		store:        opts.Store,
		notifier:     opts.Notifier,
		directory:    opts.Directory,
		runs:         opts.Runs,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		stopTimeout:  opts.StopTimeout,
		topN:         opts.TopN,
		priceThresh:  opts.PriceThresholdPct,
		volumeThresh: opts.VolumeThresholdPct,
		now:          time.Now,
		log:          logger.Component(opts.Logger, "refresh"),
	}
}

// Refresh runs one cycle. It returns false without fetching when another
// cycle is already in flight.
func (r *Refresher) Refresh(ctx context.Context) bool {
	if !r.refreshing.CompareAndSwap(false, true) {
		r.skipCount.Add(1)
		observability.RecordRefreshSkipped()
		r.log.Debug("refresh already in progress, skipping")
		return false
	}
	defer r.refreshing.Store(false)

	r.runCount.Add(1)
	start := r.now()
	run := &domain.RefreshRun{StartedAt: start.UnixMilli()}

	lists, failures := r.fetchAll(ctx)
	run.SourceErrors = failures

	merged := r.engine.Merge(lists...)
	run.Records = len(merged)

	if len(merged) == 0 {
		run.Status = domain.RunStatusEmpty
		r.log.WithField("source_errors", failures).Warn("refresh produced no records, keeping previous snapshot")
		r.finish(ctx, run, start)
		return true
	}

	next := domain.NewSnapshot(merged, r.now().UnixMilli())

	if prev := r.store.Current(); prev != nil {
		changes := aggregation.DetectSignificantChanges(prev.Records, merged, r.priceThresh, r.volumeThresh)
		r.notifyChanges(ctx, changes)
		run.PriceAlerts = len(changes.PriceChanges)
		run.VolumeSpikes = len(changes.VolumeSpikes)
	}

	if r.notifier != nil && r.notifier.ClientCount() > 0 {
		r.notifier.BroadcastSnapshot(next, r.topN)
		r.notifier.BroadcastFilterGroups(next)
	}

	if err := r.store.Replace(ctx, next); err != nil {
		r.log.WithError(err).Warn("snapshot cache update failed")
	}
	r.recordSightings(ctx, next)

	run.Status = domain.RunStatusOK
	r.finish(ctx, run, start)
	return true
}

// fetchAll calls FetchCandidates on every source concurrently. A failing
// source contributes an empty list and is counted.
func (r *Refresher) fetchAll(ctx context.Context) ([][]domain.SourceRecord, int) {
	lists := make([][]domain.SourceRecord, len(r.sources))
	var failures atomic.Int32

	var g errgroup.Group
	for i, src := range r.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
			defer cancel()

			records, err := src.FetchCandidates(fctx)
			if err != nil {
				failures.Add(1)
				observability.RecordSourceError(src.Name().String())
				r.log.WithError(err).WithField("source", src.Name()).Warn("fetch candidates failed")
				return nil
			}
			observability.RecordSourceRecords(src.Name().String(), len(records))
			lists[i] = records
			return nil
		})
	}
	_ = g.Wait()

	return lists, int(failures.Load())
}

func (r *Refresher) notifyChanges(ctx context.Context, c aggregation.Changes) {
	if r.notifier == nil || c.Empty() {
		return
	}

	updated := make(map[string]struct{})
	var order []domain.AggregatedRecord
	touch := func(rec domain.AggregatedRecord) {
		if _, ok := updated[rec.Key()]; ok {
			return
		}
		updated[rec.Key()] = struct{}{}
		order = append(order, rec)
	}

	for _, m := range c.PriceChanges {
		r.notifier.EmitPriceAlert(ctx, m)
		touch(m.Token)
	}
	for _, m := range c.VolumeSpikes {
		r.notifier.EmitVolumeSpike(ctx, m)
		touch(m.Token)
	}
	for _, rec := range order {
		r.notifier.EmitTokenUpdate(rec)
	}

	r.log.WithFields(logrus.Fields{
		"price_alerts":  len(c.PriceChanges),
		"volume_spikes": len(c.VolumeSpikes),
	}).Info("significant changes detected")
}

func (r *Refresher) recordSightings(ctx context.Context, snap *domain.Snapshot) {
	if r.directory == nil {
		return
	}
	entries := make([]domain.TokenMetadata, 0, len(snap.Records))
	for _, rec := range snap.Records {
		entries = append(entries, domain.MetadataFromRecord(rec, snap.CreatedAt))
	}
	if err := r.directory.RecordSightings(ctx, entries); err != nil {
		r.log.WithError(err).Warn("record token sightings failed")
	}
}

func (r *Refresher) finish(ctx context.Context, run *domain.RefreshRun, start time.Time) {
	end := r.now()
	run.FinishedAt = end.UnixMilli()
	observability.RecordRefresh(run.Status, end.Sub(start).Seconds())

	r.mu.Lock()
	r.lastRun = run
	if run.Status == domain.RunStatusOK {
		r.lastOKAt = run.FinishedAt
		r.lastRecCnt = run.Records
	}
	r.mu.Unlock()

	if r.runs != nil {
		if err := r.runs.Insert(ctx, run); err != nil {
			r.log.WithError(err).Warn("record refresh run failed")
		}
	}

	r.log.WithFields(logrus.Fields{
		"status":        run.Status,
		"records":       run.Records,
		"source_errors": run.SourceErrors,
		"duration_ms":   run.DurationMillis(),
	}).Info("refresh completed")
}

// Start runs one refresh immediately and then one per interval until Stop
// is called or ctx is cancelled. Cancellation stops future ticks only; a
// cycle already running completes, bounded by the per-source FetchTimeout.
// Calling Start twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.log.WithField("interval", r.interval).Info("refresh loop started")

	// Cycles outlive loop cancellation; Stop waits for them instead.
	cycleCtx := context.WithoutCancel(loopCtx)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.Refresh(cycleCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if loopCtx.Err() != nil {
					return
				}
				r.Refresh(cycleCtx)
			}
		}
	}()
}

// Stop cancels future ticks and waits for an in-flight refresh to finish,
// bounded by StopTimeout and ctx. It returns ctx's error or
// context.DeadlineExceeded when the wait is cut short.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	deadline := time.NewTimer(r.stopTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(stopPollInterval)
	defer poll.Stop()

	for r.refreshing.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			r.log.Warn("timed out waiting for in-flight refresh")
			return context.DeadlineExceeded
		case <-poll.C:
		}
	}

	r.log.Info("refresh loop stopped")
	return nil
}

// Status reports loop state for health endpoints.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Running:       r.cancel != nil,
		Refreshing:    r.refreshing.Load(),
		Interval:      r.interval.String(),
		Runs:          r.runCount.Load(),
		Skipped:       r.skipCount.Load(),
		LastSuccessAt: r.lastOKAt,
		LastRecords:   r.lastRecCnt,
	}
	if r.lastRun != nil {
		s.LastRunAt = r.lastRun.FinishedAt
		s.LastStatus = r.lastRun.Status
	}
	return s
}
