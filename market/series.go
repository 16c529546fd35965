package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInsufficientHistory is returned when fewer bars exist at-or-before a
// requested time than a lookback window needs.
var ErrInsufficientHistory = errors.New("insufficient history")

// ErrNoData is returned when a series has no bar at-or-before a requested time.
var ErrNoData = errors.New("no data at or before requested time")

// Series holds one asset's bar history sorted ascending by time.
// All reads are bounded lookups at a decision time; nothing here ever
// returns a bar stamped after the requested time.
type Series struct {
	Symbol string
	bars   []Bar
}

// NewSeries builds a series from bars, which must be strictly ascending.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return nil, fmt.Errorf("series %s: bars not strictly ascending at index %d (%s then %s)",
				symbol, i, bars[i-1].Time, bars[i].Time)
		}
	}
	return &Series{Symbol: symbol, bars: bars}, nil
}

// Append adds a bar, rejecting out-of-order timestamps.
func (s *Series) Append(b Bar) error {
	if n := len(s.bars); n > 0 && !b.Time.After(s.bars[n-1].Time) {
		return fmt.Errorf("series %s: bar %s not after last bar %s",
			s.Symbol, b.Time, s.bars[len(s.bars)-1].Time)
	}
	s.bars = append(s.bars, b)
	return nil
}

func (s *Series) Len() int { return len(s.bars) }

// SearchAt returns the index of the most recent bar with Time <= t,
// or -1 when no such bar exists.
func (s *Series) SearchAt(t time.Time) int {
	// First index with bar time strictly after t; the answer is one left.
	i := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Time.After(t)
	})
	return i - 1
}

// AsOf is the backward as-of join: the most recent bar with Time <= t.
// It never looks forward, regardless of how close the next bar is.
func (s *Series) AsOf(t time.Time) (Bar, bool) {
	i := s.SearchAt(t)
	if i < 0 {
		return Bar{}, false
	}
	return s.bars[i], true
}

// WindowAt returns the n most recent bars with Time <= t, oldest first.
// The returned slice is a copy; callers cannot mutate series history.
func (s *Series) WindowAt(t time.Time, n int) ([]Bar, error) {
	if n <= 0 {
		return nil, fmt.Errorf("series %s: window size %d", s.Symbol, n)
	}
	i := s.SearchAt(t)
	if i < 0 {
		return nil, fmt.Errorf("series %s at %s: %w", s.Symbol, t, ErrNoData)
	}
	have := i + 1
	if have < n {
		return nil, fmt.Errorf("series %s at %s: need %d bars, have %d: %w",
			s.Symbol, t, n, have, ErrInsufficientHistory)
	}
	out := make([]Bar, n)
	copy(out, s.bars[i+1-n:i+1])
	return out, nil
}

// CloseAt returns the last known close price at-or-before t.
func (s *Series) CloseAt(t time.Time) (float64, error) {
	b, ok := s.AsOf(t)
	if !ok {
		return 0, fmt.Errorf("series %s at %s: %w", s.Symbol, t, ErrNoData)
	}
	return b.Close, nil
}

// First returns the earliest bar time, or zero when empty.
func (s *Series) First() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[0].Time
}

// Last returns the latest bar time, or zero when empty.
func (s *Series) Last() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Time
}

// Times enumerates all bar timestamps, oldest first.
func (s *Series) Times() []time.Time {
	ts := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		ts[i] = b.Time
	}
	return ts
}

// History is a symbol->Series map covering the whole universe.
type History map[string]*Series

// DecisionTimes merges bar timestamps across all series into one sorted,
// de-duplicated axis the runner can step over.
func (h History) DecisionTimes() []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range h {
		for _, t := range s.Times() {
			seen[t.UnixNano()] = t
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
