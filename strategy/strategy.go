package strategy

import (
	"fmt"
	"strings"

	"github.com/quantlab/backtest/snapshot"
)

// Output is a strategy's desired allocation, expressed as fractions of the
// strategy's own budget. Values belong in [0,1] and should sum to at most 1;
// outputs are treated as untrusted and are sanitized by the aggregator.
// It is never expressed in NAV terms.
type Output struct {
	Weights    map[string]float64
	Confidence float64 // optional hint in [0,1], 0 when unused
}

// Strategy is the plugin contract. Decide must derive everything from the
// snapshot; implementations may keep their own declared state (such as a
// last-rebalance timestamp) but must not reach portfolio state, storage,
// the network, or other strategies.
type Strategy interface {
	Name() string
	Decide(s *snapshot.Snapshot) (Output, error)
}

var registry = make(map[string]func(Params) (Strategy, error))

// Params carries the per-strategy knobs the config file exposes.
type Params struct {
	Symbols        []string
	Weights        map[string]float64
	FastPeriod     int
	SlowPeriod     int
	RebalanceEvery string // duration string, empty means every step
}

// Register installs a strategy constructor under a name. Called from init()
// in each strategy file.
func Register(name string, ctor func(Params) (Strategy, error)) {
	registry[strings.ToLower(name)] = ctor
}

// ByName builds a registered strategy.
func ByName(name string, p Params) (Strategy, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %s)",
			name, strings.Join(Names(), ", "))
	}
	return ctor(p)
}

// Names lists registered strategy names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}
