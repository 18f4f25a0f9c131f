package markov

import (
	"fmt"
	"math"
	"sort"
)

// sumTolerance is how far a distribution's probabilities may drift from 1.
const sumTolerance = 1e-9

// Outcome is one possible next word of a state, with the number of times it
// was observed and its normalized probability.
type Outcome struct {
	Word        string
	Count       int
	Probability float64
}

// Distribution is a validated probability distribution over next words.
// Outcomes are kept sorted by word so that identical counts always produce
// identical tables. A Distribution is immutable once constructed.
type Distribution struct {
	outcomes []Outcome
	total    int
}

// NewDistribution normalizes observed counts into a Distribution. It fails
// with ErrInvalidDistribution if counts is empty, holds a non-positive count,
// or holds a word that is empty or contains whitespace.
func NewDistribution(counts map[string]int) (*Distribution, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no outcomes", ErrInvalidDistribution)
	}

	outcomes := make([]Outcome, 0, len(counts))
	total := 0
	for word, count := range counts {
		if !validWord(word) {
			return nil, fmt.Errorf("%w: word %q is empty or contains whitespace", ErrInvalidDistribution, word)
		}
		if count <= 0 {
			return nil, fmt.Errorf("%w: word %q has count %d", ErrInvalidDistribution, word, count)
		}
		outcomes = append(outcomes, Outcome{Word: word, Count: count})
		total += count
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Word < outcomes[j].Word
	})
	for i := range outcomes {
		outcomes[i].Probability = float64(outcomes[i].Count) / float64(total)
	}

	d := &Distribution{outcomes: outcomes, total: total}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Distribution) validate() error {
	var sum float64
	for _, o := range d.outcomes {
		sum += o.Probability
	}
	if math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidDistribution, sum)
	}
	return nil
}

// Len returns the number of distinct next words.
func (d *Distribution) Len() int {
	return len(d.outcomes)
}

// Total returns the number of observations behind the distribution.
func (d *Distribution) Total() int {
	return d.total
}

// Outcomes returns a copy of the outcomes, sorted by word.
func (d *Distribution) Outcomes() []Outcome {
	out := make([]Outcome, len(d.outcomes))
	copy(out, d.outcomes)
	return out
}

// Probability returns the probability of word, or 0 if it was never observed.
func (d *Distribution) Probability(word string) float64 {
	if i, ok := d.find(word); ok {
		return d.outcomes[i].Probability
	}
	return 0
}

// Count returns how many times word was observed.
func (d *Distribution) Count(word string) int {
	if i, ok := d.find(word); ok {
		return d.outcomes[i].Count
	}
	return 0
}

// Sum returns the sum of all probabilities.
func (d *Distribution) Sum() float64 {
	var sum float64
	for _, o := range d.outcomes {
		sum += o.Probability
	}
	return sum
}

func (d *Distribution) find(word string) (int, bool) {
	i := sort.Search(len(d.outcomes), func(i int) bool {
		return d.outcomes[i].Word >= word
	})
	return i, i < len(d.outcomes) && d.outcomes[i].Word == word
}

// counts returns a mutable copy of the raw counts.
func (d *Distribution) counts() map[string]int {
	m := make(map[string]int, len(d.outcomes))
	for _, o := range d.outcomes {
		m[o.Word] = o.Count
	}
	return m
}
