package signal

import (
	"math"
	"sort"
	"time"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/services/features"
	"WindowEdge/pkg/config"
)

// ZSample is one z observation kept for decay and reversal checks.
type ZSample struct {
	Z  float64   `json:"z"`
	At time.Time `json:"at"`
}

// State is the per asset+window memory of the signal. It is treated as a value:
// Evaluate never mutates the State it is given.
type State struct {
	History     []ZSample `json:"history"`
	EntryZ      *float64  `json:"entry_z,omitempty"`
	WeakCount   int       `json:"weak_count"`
	WeakHistory []bool    `json:"weak_history,omitempty"`
}

// MarkEntry captures the z at the first position; later calls are no-ops.
func (s State) MarkEntry(z float64) State {
	if s.EntryZ != nil {
		return s
	}
	v := z
	s.EntryZ = &v
	return s
}

// Inputs is everything one evaluation needs. Sigma is USD per minute and
// Drift is USD per minute.
type Inputs struct {
	Now         time.Time
	Reference   float64
	Current     float64
	MinutesLeft float64
	Sigma       float64
	RegimeRatio float64
	Drift       float64
	Ledger      models.PositionLedger
}

// Result is either a trade candidate (Trade true) or a rejection with Reason.
type Result struct {
	Trade       bool
	Reason      models.Reason
	Side        models.Side
	Z           float64
	PUp         float64
	Probability float64
	Threshold   float64
	Extreme     bool
}

type Engine struct {
	cfg   config.SignalConfig
	tiers []config.ZTier
}

func New(cfg config.SignalConfig) *Engine {
	tiers := append([]config.ZTier(nil), cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinMinutes > tiers[j].MinMinutes })
	return &Engine{cfg: cfg, tiers: tiers}
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// ZScore returns (current - reference - drift*minutes) / (sigma*sqrt(minutes)).
func ZScore(reference, current, minutes, sigmaPerMin, drift float64) float64 {
	sigmaT := sigmaPerMin * math.Sqrt(minutes)
	if sigmaT <= 0 {
		return 0
	}
	return (current - reference - drift*minutes) / sigmaT
}

// DetectReversal reports a sign flip between the oldest and newest samples
// whose swing exceeds threshold. Zero endpoints never count as a flip.
func DetectReversal(zs []float64, minPoints int, threshold float64) bool {
	if len(zs) < minPoints || len(zs) < 2 {
		return false
	}
	oldest, newest := zs[0], zs[len(zs)-1]
	if oldest == 0 || newest == 0 {
		return false
	}
	if (oldest > 0) == (newest > 0) {
		return false
	}
	return math.Abs(newest-oldest) > threshold
}

// BaseThreshold is the tiered |z| bar for the given minutes remaining.
func (e *Engine) BaseThreshold(minutes float64) float64 {
	for _, t := range e.tiers {
		if minutes >= t.MinMinutes {
			return t.Z
		}
	}
	return e.tiers[len(e.tiers)-1].Z
}

// Threshold scales the tier by clamp(sqrt(ratio)) and relaxes it in calm regimes.
func (e *Engine) Threshold(minutes, regimeRatio float64) float64 {
	scalar := 1.0
	if regimeRatio > 0 {
		scalar = features.Clamp(math.Sqrt(regimeRatio), e.cfg.RegimeScalarMin, e.cfg.RegimeScalarMax)
	}
	th := e.BaseThreshold(minutes) * scalar
	if scalar < e.cfg.CalmScalar {
		th *= e.cfg.CalmRelief
	}
	return th
}

// ExtremeCeiling is the |z| required for the late-expiry path with secs seconds left.
func (e *Engine) ExtremeCeiling(secs float64) float64 {
	if e.cfg.ExtremeSeconds <= 0 {
		return e.cfg.ExtremeZ
	}
	return e.cfg.ExtremeZ * (1 + secs/e.cfg.ExtremeSeconds)
}

// Evaluate runs one tick of the gating state machine. It has no side effects;
// the caller decides whether to keep the returned State.
func (e *Engine) Evaluate(in Inputs, st State) (Result, State) {
	next := State{
		History:     append([]ZSample(nil), st.History...),
		EntryZ:      st.EntryZ,
		WeakCount:   st.WeakCount,
		WeakHistory: append([]bool(nil), st.WeakHistory...),
	}

	minutes := math.Max(in.MinutesLeft, 1.0/60)
	if in.Sigma <= 0 || in.Reference <= 0 || in.Current <= 0 {
		return Result{Reason: models.ReasonNoVolatility}, next
	}

	z := ZScore(in.Reference, in.Current, minutes, in.Sigma, in.Drift)
	pUp := NormalCDF(z)
	res := Result{Z: z, PUp: pUp, Side: models.SideUp, Probability: pUp}
	if z < 0 {
		res.Side = models.SideDown
		res.Probability = 1 - pUp
	}
	res.Threshold = e.Threshold(minutes, in.RegimeRatio)

	next.History = e.appendHistory(next.History, ZSample{Z: z, At: in.Now}, in.Now)
	held := in.Ledger.HasPosition()
	next = e.updateWeak(next, held, z, res.Threshold)

	if DetectReversal(zValues(next.History), e.cfg.ReversalMinPoints, e.cfg.ReversalThreshold) {
		res.Reason = models.ReasonReversal
		return res, next
	}
	if held && next.EntryZ != nil && minutes < e.cfg.EntryReversalMinutes && *next.EntryZ*z < 0 {
		res.Reason = models.ReasonEntryReversal
		return res, next
	}

	if secs := minutes * 60; secs <= e.cfg.ExtremeSeconds && math.Abs(z) > e.ExtremeCeiling(secs) {
		res.Trade = true
		res.Extreme = true
		res.Reason = models.ReasonSubmitted
		return res, next
	}

	if math.Abs(z) < res.Threshold {
		res.Reason = models.ReasonBelowThreshold
		return res, next
	}
	if held && e.decayed(next, in.Ledger, minutes, z) {
		res.Reason = models.ReasonSignalDecay
		return res, next
	}
	if held && e.weakStop(next) {
		res.Reason = models.ReasonWeakSignal
		return res, next
	}

	res.Trade = true
	res.Reason = models.ReasonSubmitted
	return res, next
}

func (e *Engine) appendHistory(h []ZSample, s ZSample, now time.Time) []ZSample {
	h = append(h, s)
	cutoff := now.Add(-e.cfg.HistoryWindow)
	i := 0
	for i < len(h)-1 && h[i].At.Before(cutoff) {
		i++
	}
	return h[i:]
}

func (e *Engine) updateWeak(st State, held bool, z, threshold float64) State {
	if !held {
		st.WeakCount = 0
		st.WeakHistory = nil
		return st
	}
	abs := math.Abs(z)
	if abs >= e.cfg.StrongBand*threshold {
		st.WeakCount = 0
		st.WeakHistory = nil
		return st
	}
	weak := abs < e.cfg.WeakBand*threshold
	if weak {
		st.WeakCount++
	} else {
		st.WeakCount = 0
	}
	st.WeakHistory = append(st.WeakHistory, weak)
	if over := len(st.WeakHistory) - e.cfg.WeakRatioWindow; over > 0 {
		st.WeakHistory = st.WeakHistory[over:]
	}
	return st
}

func (e *Engine) weakStop(st State) bool {
	if st.WeakCount >= e.cfg.WeakConsecutive {
		return true
	}
	if len(st.WeakHistory) < e.cfg.WeakRatioWindow {
		return false
	}
	weak := 0
	for _, w := range st.WeakHistory {
		if w {
			weak++
		}
	}
	return weak*2 > len(st.WeakHistory)
}

// decayed compares the best favorable z in the retained window with the current one.
func (e *Engine) decayed(st State, ledger models.PositionLedger, minutes, z float64) bool {
	if len(st.History) < e.cfg.DecayMinPoints {
		return false
	}
	dir := 0.0
	switch {
	case ledger.Net() > 0:
		dir = 1
	case ledger.Net() < 0:
		dir = -1
	case st.EntryZ != nil && *st.EntryZ != 0:
		dir = math.Copysign(1, *st.EntryZ)
	default:
		return false
	}

	peak := math.Inf(-1)
	for _, s := range st.History {
		peak = math.Max(peak, s.Z*dir)
	}
	delta := e.cfg.DecayDeltaNear
	if minutes >= e.cfg.DecayNearMinutes {
		delta = e.cfg.DecayDeltaFar
	}
	return peak-z*dir > delta
}

func zValues(h []ZSample) []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.Z
	}
	return out
}
