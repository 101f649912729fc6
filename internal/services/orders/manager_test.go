package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
	"WindowEdge/pkg/config"
)

type fakeExecutor struct {
	mu        sync.Mutex
	submitErr error
	states    map[string]models.OrderState
	cancelled []string
	next      int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{states: make(map[string]models.OrderState)}
}

func (f *fakeExecutor) Submit(_ context.Context, _ models.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.next++
	id := "ord-" + string(rune('0'+f.next))
	f.states[id] = models.OrderState{Status: models.OrderOpen}
	return id, nil
}

func (f *fakeExecutor) Status(_ context.Context, id string) (models.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[id], nil
}

func (f *fakeExecutor) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeExecutor) set(id string, st models.OrderState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = st
}

func (f *fakeExecutor) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func (f *fakeExecutor) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

type outcomes struct {
	mu  sync.Mutex
	got []models.OrderOutcome
}

func (o *outcomes) add(out models.OrderOutcome) {
	o.mu.Lock()
	o.got = append(o.got, out)
	o.mu.Unlock()
}

func (o *outcomes) list() []models.OrderOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.OrderOutcome(nil), o.got...)
}

func testConfig() config.OrdersConfig {
	return config.OrdersConfig{
		PollInterval: 5 * time.Millisecond,
		FillTimeout:  80 * time.Millisecond,
		FillRatio:    0.95,
	}
}

var req = models.OrderRequest{Token: "tok-up", Side: models.SideUp, Price: 0.6, Size: 20}

func TestSubmitAndFill(t *testing.T) {
	exec := newFakeExecutor()
	out := &outcomes{}
	m := New(testConfig(), exec, WithOutcomeHandler(out.add))
	defer m.Close()

	po, err := m.Submit(context.Background(), "btc", "w1", req)
	require.NoError(t, err)
	assert.Equal(t, "BTC", po.Asset)
	assert.Equal(t, 1, m.PendingCount("BTC"))

	exec.set(po.ID, models.OrderState{Status: models.OrderPartial, FilledSize: 19})

	require.Eventually(t, func() bool { return len(out.list()) == 1 }, time.Second, 2*time.Millisecond)
	got := out.list()[0]
	assert.Equal(t, models.OrderFilled, got.Status)
	assert.Equal(t, 19.0, got.FilledSize)
	assert.Zero(t, m.PendingCount(""))
	assert.Empty(t, exec.cancelledIDs())
}

func TestPartialFillBelowRatioTimesOut(t *testing.T) {
	exec := newFakeExecutor()
	out := &outcomes{}
	m := New(testConfig(), exec, WithOutcomeHandler(out.add))
	defer m.Close()

	po, err := m.Submit(context.Background(), "ETH", "w1", req)
	require.NoError(t, err)
	exec.set(po.ID, models.OrderState{Status: models.OrderPartial, FilledSize: 18})

	require.Eventually(t, func() bool { return len(out.list()) == 1 }, time.Second, 2*time.Millisecond)
	got := out.list()[0]
	assert.Equal(t, models.OrderTimeout, got.Status)
	assert.Equal(t, 18.0, got.FilledSize)
	assert.Equal(t, []string{po.ID}, exec.cancelledIDs())
	assert.Zero(t, m.PendingCount("ETH"))
}

func TestVenueCancelledStopsMonitoring(t *testing.T) {
	exec := newFakeExecutor()
	out := &outcomes{}
	m := New(testConfig(), exec, WithOutcomeHandler(out.add))
	defer m.Close()

	po, err := m.Submit(context.Background(), "SOL", "w1", req)
	require.NoError(t, err)
	exec.set(po.ID, models.OrderState{Status: models.OrderFailed})

	require.Eventually(t, func() bool { return len(out.list()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, models.OrderFailed, out.list()[0].Status)
	assert.Empty(t, exec.cancelledIDs())
}

func TestSubmitErrorRegistersNothing(t *testing.T) {
	exec := newFakeExecutor()
	exec.submitErr = errors.New("insufficient balance")
	m := New(testConfig(), exec)
	defer m.Close()

	_, err := m.Submit(context.Background(), "BTC", "w1", req)
	assert.ErrorIs(t, err, models.ErrExecution)
	assert.Zero(t, m.PendingCount(""))
}

func TestCloseCancelsOutstandingOrders(t *testing.T) {
	exec := newFakeExecutor()
	out := &outcomes{}
	cfg := testConfig()
	cfg.FillTimeout = time.Hour
	m := New(cfg, exec, WithOutcomeHandler(out.add))

	po, err := m.Submit(context.Background(), "BTC", "w1", req)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.Len(t, out.list(), 1)
	assert.Equal(t, models.OrderCancelled, out.list()[0].Status)
	assert.Equal(t, []string{po.ID}, exec.cancelledIDs())

	_, err = m.Submit(context.Background(), "BTC", "w1", req)
	assert.ErrorIs(t, err, models.ErrExecution)
}

func TestSubmitAfterCloseNeverReachesVenue(t *testing.T) {
	exec := newFakeExecutor()
	m := New(testConfig(), exec)
	require.NoError(t, m.Close())

	_, err := m.Submit(context.Background(), "BTC", "w1", req)
	assert.ErrorIs(t, err, models.ErrExecution)
	assert.Zero(t, exec.submitted())
	assert.Empty(t, exec.cancelledIDs())
	assert.Zero(t, m.PendingCount(""))
}
