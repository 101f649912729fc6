package repository

import (
	"context"
	"database/sql"
	"fmt"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
	pkgkafka "WindowEdge/pkg/kafka"
	"WindowEdge/pkg/queue"
)

// ClickHouseJournal appends decisions and order outcomes to ClickHouse tables.
type ClickHouseJournal struct {
	db       *sql.DB
	table    string
	outcomes string
}

// NewClickHouseJournal writes decisions to table and outcomes to table+"_outcomes".
func NewClickHouseJournal(db *sql.DB, table string) *ClickHouseJournal {
	return &ClickHouseJournal{db: db, table: table, outcomes: table + "_outcomes"}
}

// Schema returns the idempotent DDL for both tables.
func (s *ClickHouseJournal) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	ts DateTime64(3, 'UTC'),
	asset LowCardinality(String),
	window_key LowCardinality(String),
	window_id String,
	action LowCardinality(String),
	reason LowCardinality(String),
	side LowCardinality(String),
	z Float64,
	probability Float64,
	threshold Float64,
	sigma Float64,
	regime_ratio Float64,
	drift Float64,
	minutes_left Float64,
	current_price Float64,
	reference_price Float64,
	ask Float64,
	edge Float64,
	size Float64,
	band LowCardinality(String),
	extreme UInt8,
	portfolio_risk Float64,
	order_id String
) ENGINE = MergeTree ORDER BY (asset, ts)`, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	order_id String,
	completed_at DateTime64(3, 'UTC'),
	asset LowCardinality(String),
	window_id String,
	side LowCardinality(String),
	price Float64,
	size Float64,
	filled_size Float64,
	status LowCardinality(String),
	error String
) ENGINE = MergeTree ORDER BY (asset, completed_at)`, s.outcomes),
	}
}

func (s *ClickHouseJournal) PublishDecision(ctx context.Context, d *models.Decision) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, ts, asset, window_key, window_id, action, reason, side, z, probability,
threshold, sigma, regime_ratio, drift, minutes_left, current_price, reference_price, ask, edge, size, band,
extreme, portfolio_risk, order_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	var extreme uint8
	if d.Extreme {
		extreme = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		d.ID, d.Timestamp.UTC(), d.Asset, d.WindowKey, d.WindowID, string(d.Action), string(d.Reason), string(d.Side),
		d.Z, d.Probability, d.Threshold, d.Sigma, d.RegimeRatio, d.Drift, d.MinutesLeft,
		d.CurrentPrice, d.ReferencePrice, d.Ask, d.Edge, d.Size, d.Band, extreme, d.PortfolioRisk, d.OrderID,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *ClickHouseJournal) PublishOutcome(ctx context.Context, o *models.OrderOutcome) error {
	q := fmt.Sprintf(`INSERT INTO %s (order_id, completed_at, asset, window_id, side, price, size, filled_size,
status, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.outcomes)
	_, err := s.db.ExecContext(ctx, q,
		o.Order.ID, o.CompletedAt.UTC(), o.Order.Asset, o.Order.WindowID, string(o.Order.Side),
		o.Order.Price, o.Order.Size, o.FilledSize, string(o.Status), o.Error,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecentDecisions reads the newest limit decisions back, newest first.
func (s *ClickHouseJournal) RecentDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	q := fmt.Sprintf(`SELECT id, ts, asset, window_key, window_id, action, reason, side, z, probability,
threshold, sigma, regime_ratio, drift, minutes_left, current_price, reference_price, ask, edge, size, band,
extreme, portfolio_risk, order_id FROM %s ORDER BY ts DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		var (
			d                    models.Decision
			action, reason, side string
			extreme              uint8
		)
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.Asset, &d.WindowKey, &d.WindowID, &action, &reason, &side,
			&d.Z, &d.Probability, &d.Threshold, &d.Sigma, &d.RegimeRatio, &d.Drift, &d.MinutesLeft,
			&d.CurrentPrice, &d.ReferencePrice, &d.Ask, &d.Edge, &d.Size, &d.Band, &extreme, &d.PortfolioRisk, &d.OrderID,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Action = models.Action(action)
		d.Reason = models.Reason(reason)
		d.Side = models.Side(side)
		d.Extreme = extreme == 1
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool is owned by the ClickHouse client.
func (s *ClickHouseJournal) Close() error { return nil }

// KafkaJournal publishes decisions and outcomes as JSON envelopes keyed by asset.
type KafkaJournal struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaJournal(producer *pkgkafka.Producer, topic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, topic: topic}
}

type envelope struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func (p *KafkaJournal) PublishDecision(ctx context.Context, d *models.Decision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Asset), envelope{Kind: "decision", Data: d})
}

func (p *KafkaJournal) PublishOutcome(ctx context.Context, o *models.OrderOutcome) error {
	return p.producer.Publish(ctx, p.topic, []byte(o.Order.Asset), envelope{Kind: "order_outcome", Data: o})
}

func (p *KafkaJournal) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// RedisJournal pushes decisions and outcomes onto a capped Redis list.
type RedisJournal struct {
	q *queue.RedisQueue
}

func NewRedisJournal(q *queue.RedisQueue) *RedisJournal {
	return &RedisJournal{q: q}
}

func (r *RedisJournal) PublishDecision(ctx context.Context, d *models.Decision) error {
	return r.q.PublishMessage(ctx, "decision", d)
}

func (r *RedisJournal) PublishOutcome(ctx context.Context, o *models.OrderOutcome) error {
	return r.q.PublishMessage(ctx, "order_outcome", o)
}

// RecentDecisions reads decisions back from the head of the list, newest first.
// Outcomes share the list, so up to 2*limit entries are scanned.
func (r *RedisJournal) RecentDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	msgs, err := r.q.Peek(ctx, int64(2*limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.Decision, 0, limit)
	for _, m := range msgs {
		if m.Type != "decision" || len(out) == limit {
			continue
		}
		d, err := queue.ParsePayload[models.Decision](m.Payload)
		if err != nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *RedisJournal) Close() error {
	r.q.Stop()
	return nil
}

var (
	_ repository.DecisionJournal = (*ClickHouseJournal)(nil)
	_ repository.DecisionJournal = (*KafkaJournal)(nil)
	_ repository.DecisionJournal = (*RedisJournal)(nil)

	_ repository.DecisionHistory = (*ClickHouseJournal)(nil)
	_ repository.DecisionHistory = (*RedisJournal)(nil)
)
