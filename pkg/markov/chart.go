package markov

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// TransitionTable accumulates observed (state, next word) pairs while a
// chart is being built. It is not safe for concurrent use.
type TransitionTable struct {
	order        int
	counts       map[State]map[string]int
	observations int
}

// NewTransitionTable creates an empty table for states of the given order.
func NewTransitionTable(order int) (*TransitionTable, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: state size must be at least 1, got %d", ErrConfiguration, order)
	}
	return &TransitionTable{
		order:  order,
		counts: make(map[State]map[string]int),
	}, nil
}

// Observe records one occurrence of next following state.
func (t *TransitionTable) Observe(state State, next string) error {
	if state.Len() != t.order {
		return fmt.Errorf("%w: state %q has %d words, table order is %d", ErrConfiguration, state, state.Len(), t.order)
	}
	if !validWord(next) {
		return fmt.Errorf("%w: next word %q is empty or contains whitespace", ErrConfiguration, next)
	}
	t.observe(state, next)
	return nil
}

func (t *TransitionTable) observe(state State, next string) {
	nexts, ok := t.counts[state]
	if !ok {
		nexts = make(map[string]int)
		t.counts[state] = nexts
	}
	nexts[next]++
	t.observations++
}

// Order returns the state length of the table.
func (t *TransitionTable) Order() int {
	return t.order
}

// Len returns the number of distinct states observed so far.
func (t *TransitionTable) Len() int {
	return len(t.counts)
}

// Observations returns the number of transitions observed so far.
func (t *TransitionTable) Observations() int {
	return t.observations
}

// Build normalizes every state's counts and returns the immutable Chart.
// It fails with ErrEmptyChart if nothing was observed.
func (t *TransitionTable) Build() (*Chart, error) {
	if len(t.counts) == 0 {
		return nil, fmt.Errorf("%w: no transitions observed", ErrEmptyChart)
	}
	states := make(map[State]*Distribution, len(t.counts))
	for state, nexts := range t.counts {
		dist, err := NewDistribution(nexts)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", state, err)
		}
		states[state] = dist
	}
	return newChart(t.order, states), nil
}

// Chart is the finalized mapping from states to next-word distributions.
// A Chart is never mutated after construction and may be shared by any
// number of concurrent generation runs.
type Chart struct {
	order    int
	states   map[State]*Distribution
	keys     []State
	starters []State
}

func newChart(order int, states map[State]*Distribution) *Chart {
	keys := make([]State, 0, len(states))
	for state := range states {
		keys = append(keys, state)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].key < keys[j].key
	})

	var starters []State
	for _, state := range keys {
		if state.IsStarter() {
			starters = append(starters, state)
		}
	}

	return &Chart{
		order:    order,
		states:   states,
		keys:     keys,
		starters: starters,
	}
}

// Order returns the number of words in every state of the chart.
func (c *Chart) Order() int {
	return c.order
}

// Len returns the number of states in the chart.
func (c *Chart) Len() int {
	return len(c.keys)
}

// Lookup returns the distribution of words following state.
func (c *Chart) Lookup(state State) (*Distribution, bool) {
	d, ok := c.states[state]
	return d, ok
}

// Keys returns every state in the chart, sorted.
func (c *Chart) Keys() []State {
	out := make([]State, len(c.keys))
	copy(out, c.keys)
	return out
}

// Starters returns the states eligible to open generated output, sorted.
func (c *Chart) Starters() []State {
	out := make([]State, len(c.starters))
	copy(out, c.starters)
	return out
}

func (c *Chart) randomStarter(rng *rand.Rand) (State, bool) {
	if len(c.starters) == 0 {
		return State{}, false
	}
	return c.starters[rng.IntN(len(c.starters))], true
}

func (c *Chart) randomKey(rng *rand.Rand) State {
	return c.keys[rng.IntN(len(c.keys))]
}
