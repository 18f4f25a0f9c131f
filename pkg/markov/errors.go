package markov

import "errors"

var (
	// ErrConfiguration is returned when a state size, word count or option is
	// out of range, or when a corpus cannot support the requested state size.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmptyChart is returned when a corpus is too short to yield a single
	// transition, or when an operation is given a chart with no states.
	ErrEmptyChart = errors.New("empty chart")

	// ErrNoStarterAvailable is returned when a chart has no state whose first
	// word is capitalized and free of sentence-terminal punctuation.
	ErrNoStarterAvailable = errors.New("no starter state available")

	// ErrNoTerminalFound is returned when terminal seeking exceeds its ceiling
	// without sampling a word that ends a sentence.
	ErrNoTerminalFound = errors.New("no terminal word found")

	// ErrInvalidDistribution is returned when a probability distribution is
	// empty, carries a non-positive count, or does not sum to one.
	ErrInvalidDistribution = errors.New("invalid probability distribution")
)
