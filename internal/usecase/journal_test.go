package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
)

// countingMetrics records the calls the use cases make.
type countingMetrics struct {
	mu        sync.Mutex
	errors    map[string]int
	sent      map[string]int
	decisions map[models.Reason]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		errors:    make(map[string]int),
		sent:      make(map[string]int),
		decisions: make(map[models.Reason]int),
	}
}

func (m *countingMetrics) RecordDecision(_ string, _ models.Action, reason models.Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[reason]++
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordMessageSent(backend, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend]++
}

func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64) {}
func (m *countingMetrics) RecordSignal(string, float64, float64) {}
func (m *countingMetrics) RecordExposure(string, float64) {}
func (m *countingMetrics) RecordOrderOutcome(models.OrderStatus) {}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *countingMetrics) decisionCount(reason models.Reason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decisions[reason]
}

type recordingSink struct {
	mu        sync.Mutex
	decisions []models.Decision
	outcomes  []models.OrderOutcome
	err       error
	closed    bool
}

func (s *recordingSink) PublishDecision(_ context.Context, d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.decisions = append(s.decisions, *d)
	return nil
}

func (s *recordingSink) PublishOutcome(_ context.Context, o *models.OrderOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.outcomes = append(s.outcomes, *o)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

var _ drepo.DecisionJournal = (*recordingSink)(nil)

func decision(asset string, i int, traded bool) models.Decision {
	d := models.Decision{
		ID:        fmt.Sprintf("%s-%d", asset, i),
		Asset:     asset,
		Timestamp: windowStart.Add(time.Duration(i) * time.Second),
		Action:    models.ActionNoTrade,
		Reason:    models.ReasonBelowThreshold,
	}
	if traded {
		d.Action = models.ActionBuy
		d.Reason = models.ReasonSubmitted
	}
	return d
}

func TestJournalRecentIsNewestFirstAndBounded(t *testing.T) {
	j := NewJournal(nil, newCountingMetrics(), nil, "none", 3)
	for i := 0; i < 5; i++ {
		j.RecordDecision(context.Background(), decision("BTC", i, false))
	}

	got := j.Recent("", 10, false)
	require.Len(t, got, 3)
	assert.Equal(t, "BTC-4", got[0].ID)
	assert.Equal(t, "BTC-3", got[1].ID)
	assert.Equal(t, "BTC-2", got[2].ID)
}

func TestJournalRecentFilters(t *testing.T) {
	j := NewJournal(nil, newCountingMetrics(), nil, "none", 10)
	j.RecordDecision(context.Background(), decision("BTC", 0, false))
	j.RecordDecision(context.Background(), decision("ETH", 1, true))
	j.RecordDecision(context.Background(), decision("BTC", 2, true))
	j.RecordDecision(context.Background(), decision("BTC", 3, false))

	btc := j.Recent("btc", 10, false)
	require.Len(t, btc, 3)
	assert.Equal(t, "BTC-3", btc[0].ID)

	trades := j.Recent("", 10, true)
	require.Len(t, trades, 2)
	assert.Equal(t, "BTC-2", trades[0].ID)
	assert.Equal(t, "ETH-1", trades[1].ID)

	assert.Len(t, j.Recent("", 1, false), 1)
}

func TestJournalLast(t *testing.T) {
	j := NewJournal(nil, newCountingMetrics(), nil, "none", 10)
	_, ok := j.Last("BTC")
	assert.False(t, ok)

	j.RecordDecision(context.Background(), decision("BTC", 0, false))
	j.RecordDecision(context.Background(), decision("BTC", 1, true))
	d, ok := j.Last("btc")
	require.True(t, ok)
	assert.Equal(t, "BTC-1", d.ID)
}

func TestJournalForwardsToBackend(t *testing.T) {
	sink := &recordingSink{}
	m := newCountingMetrics()
	j := NewJournal(map[string]drepo.DecisionJournal{"kafka": sink}, m, nil, "kafka", 10)

	j.RecordDecision(context.Background(), decision("BTC", 0, true))
	j.RecordOutcome(models.OrderOutcome{Order: models.PendingOrder{ID: "o1", Asset: "BTC"}, Status: models.OrderFilled})

	j.Close(context.Background())
	require.Len(t, sink.decisions, 1)
	require.Len(t, sink.outcomes, 1)
	assert.Equal(t, 2, m.sent["kafka"])
	assert.True(t, sink.closed)
}

func TestJournalSinkFailureIsCountedNotPropagated(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	m := newCountingMetrics()
	j := NewJournal(map[string]drepo.DecisionJournal{"kafka": sink}, m, nil, "kafka", 10)

	j.RecordDecision(context.Background(), decision("BTC", 0, false))
	j.RecordOutcome(models.OrderOutcome{Order: models.PendingOrder{ID: "o1"}, Status: models.OrderTimeout})
	j.Close(context.Background())

	assert.Equal(t, 1, m.errorCount("journal"))
	assert.Equal(t, 1, m.errorCount("journal_outcome"))
	_, ok := j.Last("BTC")
	assert.True(t, ok)
}

func TestJournalUnknownBackend(t *testing.T) {
	m := newCountingMetrics()
	j := NewJournal(nil, m, nil, "clickhouse", 10)

	j.RecordDecision(context.Background(), decision("BTC", 0, false))
	assert.Equal(t, 1, m.errorCount("journal"))
}

// replayingSink also reads stored decisions back, newest first.
type replayingSink struct {
	recordingSink
	stored  []models.Decision
	readErr error
}

func (s *replayingSink) RecentDecisions(_ context.Context, limit int) ([]models.Decision, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.stored[:min(limit, len(s.stored))], nil
}

var _ drepo.DecisionHistory = (*replayingSink)(nil)

func TestJournalWarmSeedsRingWithoutRepublishing(t *testing.T) {
	sink := &replayingSink{stored: []models.Decision{
		decision("BTC", 3, true),
		decision("ETH", 2, false),
		decision("BTC", 1, false),
	}}
	j := NewJournal(map[string]drepo.DecisionJournal{"redis": sink}, newCountingMetrics(), nil, "redis", 10)

	n, err := j.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, sink.decisions)

	got := j.Recent("", 10, false)
	require.Len(t, got, 3)
	assert.Equal(t, "BTC-3", got[0].ID)
	assert.Equal(t, "BTC-1", got[2].ID)

	last, ok := j.Last("BTC")
	require.True(t, ok)
	assert.Equal(t, "BTC-3", last.ID)

	j.RecordDecision(context.Background(), decision("BTC", 4, false))
	assert.Equal(t, "BTC-4", j.Recent("", 1, false)[0].ID)
}

func TestJournalWarmIsBoundedByRing(t *testing.T) {
	var stored []models.Decision
	for i := 9; i >= 0; i-- {
		stored = append(stored, decision("BTC", i, false))
	}
	sink := &replayingSink{stored: stored}
	j := NewJournal(map[string]drepo.DecisionJournal{"clickhouse": sink}, newCountingMetrics(), nil, "clickhouse", 4)

	n, err := j.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	got := j.Recent("", 10, false)
	require.Len(t, got, 4)
	assert.Equal(t, "BTC-9", got[0].ID)
}

func TestJournalWarmSkipsWriteOnlyBackends(t *testing.T) {
	j := NewJournal(map[string]drepo.DecisionJournal{"kafka": &recordingSink{}}, newCountingMetrics(), nil, "kafka", 10)
	n, err := j.Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	none := NewJournal(nil, newCountingMetrics(), nil, "none", 10)
	n, err = none.Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournalWarmReportsReadErrors(t *testing.T) {
	sink := &replayingSink{readErr: errors.New("connection refused")}
	j := NewJournal(map[string]drepo.DecisionJournal{"redis": sink}, newCountingMetrics(), nil, "redis", 10)

	_, err := j.Warm(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
	assert.Empty(t, j.Recent("", 10, false))
}

// stuckSink never returns until its context ends.
type stuckSink struct {
	recordingSink
	calls atomic.Int32
}

func (s *stuckSink) PublishDecision(ctx context.Context, _ *models.Decision) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestJournalHungBackendDoesNotBlockRecording(t *testing.T) {
	sink := &stuckSink{}
	m := newCountingMetrics()
	j := NewJournal(map[string]drepo.DecisionJournal{"clickhouse": sink}, m, nil, "clickhouse", 10,
		WithPublishTimeout(20*time.Millisecond))

	returned := make(chan struct{})
	go func() {
		j.RecordDecision(context.WithoutCancel(context.Background()), decision("BTC", 0, true))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("RecordDecision waited on the backend")
	}

	_, ok := j.Last("BTC")
	assert.True(t, ok)
	require.Eventually(t, func() bool { return m.errorCount("journal") == 1 }, time.Second, 5*time.Millisecond)

	j.Close(context.Background())
	assert.EqualValues(t, 1, sink.calls.Load())
	assert.True(t, sink.closed)
}

func TestJournalDropsWhenQueueIsFull(t *testing.T) {
	sink := &stuckSink{}
	m := newCountingMetrics()
	j := NewJournal(map[string]drepo.DecisionJournal{"kafka": sink}, m, nil, "kafka", 10,
		WithPublishTimeout(time.Hour), WithJournalBuffer(1))

	for i := 0; i < 3; i++ {
		j.RecordDecision(context.Background(), decision("BTC", i, false))
	}
	assert.GreaterOrEqual(t, m.errorCount("journal_dropped"), 1)
	assert.Len(t, j.Recent("", 10, false), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	j.Close(ctx)
	assert.True(t, sink.closed)
}

func TestJournalIgnoresEntriesAfterClose(t *testing.T) {
	sink := &recordingSink{}
	j := NewJournal(map[string]drepo.DecisionJournal{"redis": sink}, newCountingMetrics(), nil, "redis", 10)
	j.Close(context.Background())
	j.Close(context.Background())

	j.RecordDecision(context.Background(), decision("BTC", 0, false))
	assert.Empty(t, sink.decisions)
	_, ok := j.Last("BTC")
	assert.True(t, ok)
}
