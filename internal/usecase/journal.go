package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	"WindowEdge/pkg/logger"
)

const (
	defaultPublishTimeout = 2 * time.Second
	defaultJournalBuffer  = 1024
)

// Journal keeps a ring of recent decisions for the status API and routes every
// decision and order outcome to the configured backend. Publishing happens on
// a single worker draining a bounded queue, so a slow backend never holds a tick.
type Journal struct {
	sinks   map[string]drepo.DecisionJournal
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	timeout time.Duration
	buffer  int

	mu     sync.RWMutex
	recent []models.Decision
	next   int
	full   bool
	last   map[string]models.Decision

	qmu    sync.RWMutex
	queue  chan journalEntry
	closed bool
	done   chan struct{}
}

type journalEntry struct {
	decision *models.Decision
	outcome  *models.OrderOutcome
}

func (e journalEntry) asset() string {
	if e.decision != nil {
		return e.decision.Asset
	}
	return e.outcome.Order.Asset
}

type JournalOption func(*Journal)

// WithPublishTimeout bounds every backend write.
func WithPublishTimeout(d time.Duration) JournalOption {
	return func(j *Journal) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithJournalBuffer sets how many entries may wait for the backend before new
// ones are dropped.
func WithJournalBuffer(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.buffer = n
		}
	}
}

// NewJournal creates a journal writing to sinks[backend]. Backend "none" (or
// empty) keeps decisions in memory only.
func NewJournal(
	sinks map[string]drepo.DecisionJournal,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	recentSize int,
	opts ...JournalOption,
) *Journal {
	if recentSize <= 0 {
		recentSize = 500
	}
	if log == nil {
		log = logger.NewNop()
	}
	j := &Journal{
		sinks:   sinks,
		metrics: metrics,
		log:     log,
		backend: backend,
		timeout: defaultPublishTimeout,
		buffer:  defaultJournalBuffer,
		recent:  make([]models.Decision, recentSize),
		last:    make(map[string]models.Decision),
	}
	for _, opt := range opts {
		opt(j)
	}
	if sink, err := j.sink(); err == nil && sink != nil {
		j.queue = make(chan journalEntry, j.buffer)
		j.done = make(chan struct{})
		go j.worker(sink)
	}
	return j
}

func (j *Journal) sink() (drepo.DecisionJournal, error) {
	if j.backend == "" || j.backend == "none" {
		return nil, nil
	}
	s, ok := j.sinks[j.backend]
	if !ok || s == nil {
		return nil, fmt.Errorf("unknown backend: %s", j.backend)
	}
	return s, nil
}

// Warm seeds the ring from the backend when it can read decisions back, so
// the status API keeps its history across restarts. Nothing is re-published.
func (j *Journal) Warm(ctx context.Context) (int, error) {
	sink, err := j.sink()
	if err != nil || sink == nil {
		return 0, err
	}
	h, ok := sink.(drepo.DecisionHistory)
	if !ok {
		return 0, nil
	}
	ds, err := h.RecentDecisions(ctx, len(j.recent))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.backend, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(ds) - 1; i >= 0; i-- {
		d := ds[i]
		j.recent[j.next] = d
		j.next = (j.next + 1) % len(j.recent)
		if j.next == 0 {
			j.full = true
		}
		if prev, ok := j.last[d.Asset]; !ok || d.Timestamp.After(prev.Timestamp) {
			j.last[d.Asset] = d
		}
	}
	return len(ds), nil
}

// RecordDecision remembers d and queues it for the backend. It never waits on
// the backend; a full queue drops the entry and counts it.
func (j *Journal) RecordDecision(_ context.Context, d models.Decision) {
	j.mu.Lock()
	j.recent[j.next] = d
	j.next = (j.next + 1) % len(j.recent)
	if j.next == 0 {
		j.full = true
	}
	j.last[d.Asset] = d
	j.mu.Unlock()

	j.enqueue(journalEntry{decision: &d}, "journal")
}

// RecordOutcome queues a terminal order state for the backend. It matches the
// orders manager's outcome handler signature.
func (j *Journal) RecordOutcome(o models.OrderOutcome) {
	j.log.Info("order finished",
		logger.String("order_id", o.Order.ID),
		logger.String("asset", o.Order.Asset),
		logger.String("status", string(o.Status)),
		logger.Float64("filled", o.FilledSize),
		logger.Float64("size", o.Order.Size),
	)
	j.enqueue(journalEntry{outcome: &o}, "journal_outcome")
}

func (j *Journal) enqueue(e journalEntry, kind string) {
	if _, err := j.sink(); err != nil {
		j.metrics.RecordError(kind)
		j.log.Warn("journal unavailable", logger.String("asset", e.asset()), logger.Error(err))
		return
	}

	j.qmu.RLock()
	defer j.qmu.RUnlock()
	if j.queue == nil || j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.metrics.RecordError("journal_dropped")
		j.log.Warn("journal queue full, entry dropped",
			logger.String("backend", j.backend),
			logger.String("asset", e.asset()),
		)
	}
}

func (j *Journal) worker(sink drepo.DecisionJournal) {
	defer close(j.done)
	for e := range j.queue {
		j.publish(sink, e)
	}
}

func (j *Journal) publish(sink drepo.DecisionJournal, e journalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	kind := "journal"
	var err error
	if e.decision != nil {
		err = sink.PublishDecision(ctx, e.decision)
	} else {
		kind = "journal_outcome"
		err = sink.PublishOutcome(ctx, e.outcome)
	}
	if err != nil {
		j.metrics.RecordError(kind)
		j.log.Warn("journal publish failed",
			logger.String("backend", j.backend),
			logger.String("asset", e.asset()),
			logger.Error(err),
		)
		return
	}
	j.metrics.RecordMessageSent(j.backend, e.asset())
	j.metrics.RecordLatency(kind, time.Since(start).Seconds())
}

// Recent returns up to limit decisions, newest first, optionally filtered by
// asset and to trades only.
func (j *Journal) Recent(asset string, limit int, tradesOnly bool) []models.Decision {
	asset = strings.ToUpper(asset)
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := j.next
	if j.full {
		n = len(j.recent)
	}
	out := make([]models.Decision, 0, min(limit, n))
	for i := 1; i <= n && len(out) < limit; i++ {
		d := j.recent[(j.next-i+len(j.recent))%len(j.recent)]
		if asset != "" && d.Asset != asset {
			continue
		}
		if tradesOnly && !d.Traded() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Last returns the latest decision journaled for asset.
func (j *Journal) Last(asset string) (models.Decision, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	d, ok := j.last[strings.ToUpper(asset)]
	return d, ok
}

// Close stops accepting entries, drains the queue until ctx is done and then
// closes every sink, flushing buffered producers.
func (j *Journal) Close(ctx context.Context) {
	j.qmu.Lock()
	alreadyClosed := j.closed
	j.closed = true
	if j.queue != nil && !alreadyClosed {
		close(j.queue)
	}
	j.qmu.Unlock()
	if alreadyClosed {
		return
	}

	if j.done != nil {
		select {
		case <-j.done:
		case <-ctx.Done():
			j.log.Warn("journal not drained", logger.Int("pending", len(j.queue)), logger.Error(ctx.Err()))
		}
	}

	for name, s := range j.sinks {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			j.log.Warn("journal close failed", logger.String("backend", name), logger.Error(err))
		}
	}
}
