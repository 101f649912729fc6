package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
)

func TestPaperFillsAfterDelay(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(2*time.Second, nil)
	e.now = func() time.Time { return now }
	ctx := context.Background()

	id, err := e.Submit(ctx, models.OrderRequest{Token: "t", Side: models.SideDown, Price: 0.4, Size: 20})
	require.NoError(t, err)

	st, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, st.Status)

	now = now.Add(2 * time.Second)
	st, err = e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, st.Status)
	assert.Equal(t, 20.0, st.FilledSize)
}

func TestPaperCancelAndUnknown(t *testing.T) {
	e := New(time.Hour, nil)
	ctx := context.Background()
	id, err := e.Submit(ctx, models.OrderRequest{Token: "t", Side: models.SideUp, Price: 0.5, Size: 5})
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, id))

	st, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, st.Status)

	_, err = e.Status(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = e.Submit(ctx, models.OrderRequest{Token: "t", Price: 1.2, Size: 5})
	assert.Error(t, err)
}
