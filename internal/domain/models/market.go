package models

import (
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

func (s Side) Valid() bool { return s == SideUp || s == SideDown }

func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Sign is +1 for UP and -1 for DOWN; net exposure is up minus down.
func (s Side) Sign() float64 {
	if s == SideDown {
		return -1
	}
	return 1
}

// PricePoint is one immutable observation of a reference price.
type PricePoint struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
}

// PriceTick is a PricePoint tagged with its asset and origin, as delivered by feeds.
type PriceTick struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"ts"`
	Source    string    `json:"source,omitempty"`
}

func (t PriceTick) Point() PricePoint { return PricePoint{Timestamp: t.Timestamp, Price: t.Price} }

type TokenHandles struct {
	Up   string `json:"up"`
	Down string `json:"down"`
}

func (t TokenHandles) For(side Side) string {
	if side == SideDown {
		return t.Down
	}
	return t.Up
}

// WindowMetadata is what the venue reports about a window. ReferencePrice is zero when absent.
type WindowMetadata struct {
	ID             string
	End            time.Time
	Tokens         TokenHandles
	ReferencePrice float64
}

// MarketWindow is the cached, immutable view of one window for one asset.
type MarketWindow struct {
	Key            string       `json:"window_key"`
	Asset          string       `json:"asset"`
	ID             string       `json:"id"`
	Start          time.Time    `json:"start"`
	End            time.Time    `json:"end"`
	ReferencePrice float64      `json:"reference_price"`
	Tokens         TokenHandles `json:"tokens"`
}

func (w MarketWindow) MinutesRemaining(now time.Time) float64 {
	return w.End.Sub(now).Minutes()
}

// WindowID builds the identity of the window of the given key starting at start.
func WindowID(asset, key string, start time.Time) string {
	return fmt.Sprintf("%s-updown-%s-%d", strings.ToLower(asset), key, start.Unix())
}

// PositionLedger counts shares bought in one asset+window. There is no sell path.
type PositionLedger struct {
	TotalShares float64 `json:"total_shares"`
	Up          float64 `json:"up"`
	Down        float64 `json:"down"`
}

func (l PositionLedger) Net() float64 { return l.Up - l.Down }

func (l PositionLedger) Shares(side Side) float64 {
	if side == SideDown {
		return l.Down
	}
	return l.Up
}

func (l PositionLedger) HasPosition() bool { return l.TotalShares > 0 }

// Add records a fill. Non-positive sizes are ignored so the ledger never decreases.
func (l *PositionLedger) Add(side Side, size float64) {
	if size <= 0 {
		return
	}
	if side == SideDown {
		l.Down += size
	} else {
		l.Up += size
	}
	l.TotalShares = l.Up + l.Down
}
