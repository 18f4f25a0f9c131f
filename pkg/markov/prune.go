package markov

import "fmt"

// Prune returns a new chart without the transitions observed `minCount`
// times or fewer. This is useful for reducing the size of a chart by
// removing rare, and often noisy, transitions. Surviving distributions are
// renormalized and states left without outcomes are dropped. The receiver is
// not modified. Pruning everything fails with ErrEmptyChart.
func (c *Chart) Prune(minCount int) (*Chart, error) {
	states := make(map[State]*Distribution, len(c.states))
	removed := 0
	for state, dist := range c.states {
		counts := dist.counts()
		for word, count := range counts {
			if count <= minCount {
				delete(counts, word)
				removed++
			}
		}
		if len(counts) == 0 {
			continue
		}
		pruned, err := NewDistribution(counts)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", state, err)
		}
		states[state] = pruned
	}

	if len(states) == 0 {
		return nil, fmt.Errorf("%w: pruning at %d removed all %d transitions", ErrEmptyChart, minCount, removed)
	}
	return newChart(c.order, states), nil
}
