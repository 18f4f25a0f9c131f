package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// ExportedChart is the serializable representation of a chart,
// used for JSON-based export and import.
type ExportedChart struct {
	Order  int             `json:"order"`
	States []ExportedState `json:"states"`
}

// ExportedState is the serializable representation of a single state and
// its next-word distribution, used within an ExportedChart.
type ExportedState struct {
	Words []string          `json:"words"`
	Next  []ExportedOutcome `json:"next"`
}

// ExportedOutcome is the serializable representation of one next word.
type ExportedOutcome struct {
	Word        string  `json:"word"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// Export serializes the chart into a JSON format and writes it to the
// provided io.Writer. States are written in sorted order, so exporting
// the same chart twice produces identical bytes.
func (c *Chart) Export(w io.Writer) error {
	exported := ExportedChart{
		Order:  c.order,
		States: make([]ExportedState, 0, len(c.keys)),
	}
	for _, state := range c.keys {
		dist := c.states[state]
		next := make([]ExportedOutcome, 0, dist.Len())
		for _, o := range dist.outcomes {
			next = append(next, ExportedOutcome{Word: o.Word, Count: o.Count, Probability: o.Probability})
		}
		exported.States = append(exported.States, ExportedState{Words: state.Words(), Next: next})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportChart reads a JSON representation of a chart from an io.Reader.
// Distributions are rebuilt from their counts, and every stated probability
// must agree with its recomputed value.
func ImportChart(r io.Reader) (*Chart, error) {
	var imported ExportedChart
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, fmt.Errorf("failed to decode json chart: %w", err)
	}
	if imported.Order < 1 {
		return nil, fmt.Errorf("%w: imported chart has order %d", ErrConfiguration, imported.Order)
	}
	if len(imported.States) == 0 {
		return nil, fmt.Errorf("%w: imported chart has no states", ErrEmptyChart)
	}

	states := make(map[State]*Distribution, len(imported.States))
	for i, es := range imported.States {
		if len(es.Words) != imported.Order {
			return nil, fmt.Errorf("%w: state %d has %d words, chart order is %d", ErrConfiguration, i, len(es.Words), imported.Order)
		}
		state, err := NewState(es.Words...)
		if err != nil {
			return nil, fmt.Errorf("state %d: %w", i, err)
		}
		if _, dup := states[state]; dup {
			return nil, fmt.Errorf("%w: state %q appears twice", ErrConfiguration, state)
		}

		counts := make(map[string]int, len(es.Next))
		for _, o := range es.Next {
			counts[o.Word] += o.Count
		}
		dist, err := NewDistribution(counts)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", state, err)
		}
		for _, o := range es.Next {
			if math.Abs(dist.Probability(o.Word)-o.Probability) > sumTolerance {
				return nil, fmt.Errorf("%w: state %q word %q has probability %v, counts give %v",
					ErrInvalidDistribution, state, o.Word, o.Probability, dist.Probability(o.Word))
			}
		}
		states[state] = dist
	}

	return newChart(imported.Order, states), nil
}
