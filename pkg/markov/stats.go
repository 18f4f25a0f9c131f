package markov

// ChartStats holds aggregated statistics for a single Chart.
type ChartStats struct {
	Order         int `json:"order"`          // The number of words in every state
	States        int `json:"states"`         // The number of distinct states
	Starters      int `json:"starters"`       // The number of states that can open output
	Transitions   int `json:"transitions"`    // The number of unique state->next word links
	Observations  int `json:"observations"`   // The sum of all link counts; the number of trained transitions
	Vocabulary    int `json:"vocabulary"`     // The number of distinct words in states and outcomes
	TerminalWords int `json:"terminal_words"` // The number of distinct next words that end a sentence
}

// Stats returns a snapshot of statistics for the chart.
func (c *Chart) Stats() ChartStats {
	stats := ChartStats{
		Order:    c.order,
		States:   len(c.keys),
		Starters: len(c.starters),
	}

	vocab := make(map[string]struct{})
	terminals := make(map[string]struct{})
	for _, state := range c.keys {
		for _, w := range state.Words() {
			vocab[w] = struct{}{}
		}
		dist := c.states[state]
		stats.Transitions += dist.Len()
		stats.Observations += dist.Total()
		for _, o := range dist.outcomes {
			vocab[o.Word] = struct{}{}
			if IsTerminal(o.Word) {
				terminals[o.Word] = struct{}{}
			}
		}
	}
	stats.Vocabulary = len(vocab)
	stats.TerminalWords = len(terminals)
	return stats
}
