package repository

import (
	"context"
	"time"

	"WindowEdge/internal/domain/models"
)

// PriceFeed returns the latest reference price of an asset with its observation time.
type PriceFeed interface {
	CurrentPrice(ctx context.Context, asset string) (models.PricePoint, error)
}

// MarketMetadataProvider resolves windows by identity. ReferencePrice is the
// separate fetch used when metadata carries no start price.
type MarketMetadataProvider interface {
	WindowMetadata(ctx context.Context, windowID string) (models.WindowMetadata, error)
	ReferencePrice(ctx context.Context, asset string, start time.Time) (float64, error)
}

// OrderBookProvider returns the best ask for a token; ok is false on an empty book.
type OrderBookProvider interface {
	BestAsk(ctx context.Context, token string) (price float64, ok bool, err error)
}

type OrderExecutor interface {
	Submit(ctx context.Context, req models.OrderRequest) (string, error)
	Status(ctx context.Context, orderID string) (models.OrderState, error)
	Cancel(ctx context.Context, orderID string) error
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// DecisionJournal publishes decisions and order outcomes to an external sink.
type DecisionJournal interface {
	PublishDecision(ctx context.Context, d *models.Decision) error
	PublishOutcome(ctx context.Context, o *models.OrderOutcome) error
	Close() error
}

// DecisionHistory is implemented by journals that can read back what they stored.
type DecisionHistory interface {
	RecentDecisions(ctx context.Context, limit int) ([]models.Decision, error)
}

type Metrics interface {
	RecordDecision(asset string, action models.Action, reason models.Reason)
	RecordError(kind string)
	RecordLastPrice(asset string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSignal(asset string, z, probability float64)
	RecordExposure(asset string, net float64)
	RecordOrderOutcome(status models.OrderStatus)
	RecordMessageSent(backend, asset string)
}
