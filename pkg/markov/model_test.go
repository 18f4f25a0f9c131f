package markov

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	chart := mustBuildChart(t, catCorpus, 2)

	// 1. Export the chart to an in-memory buffer
	var buf bytes.Buffer
	if err := chart.Export(&buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.String()

	// 2. Import from the buffer
	imported, err := ImportChart(&buf)
	if err != nil {
		t.Fatalf("ImportChart failed: %v", err)
	}

	// 3. Verify the imported chart re-exports identically
	var again bytes.Buffer
	if err = imported.Export(&again); err != nil {
		t.Fatal(err)
	}
	if again.String() != exported {
		t.Errorf("re-exported chart differs:\n%s\n---\n%s", exported, again.String())
	}
	if imported.Stats() != chart.Stats() {
		t.Errorf("imported stats %+v, want %+v", imported.Stats(), chart.Stats())
	}

	// 4. Generate from the imported chart.
	result, err := newTestGenerator(t).Generate(t.Context(), imported, WithMinWords(4))
	if err != nil {
		t.Fatalf("Generate from imported chart failed: %v", err)
	}
	if !IsTerminal(result.Words[len(result.Words)-1]) {
		t.Errorf("generated text %q does not end a sentence", result.Text())
	}
}

func TestImportChartRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "Zero order",
			input:   `{"order": 0, "states": [{"words": ["A"], "next": [{"word": "b.", "count": 1, "probability": 1}]}]}`,
			wantErr: ErrConfiguration,
		},
		{
			name:    "No states",
			input:   `{"order": 1, "states": []}`,
			wantErr: ErrEmptyChart,
		},
		{
			name:    "Wrong state length",
			input:   `{"order": 2, "states": [{"words": ["A"], "next": [{"word": "b.", "count": 1, "probability": 1}]}]}`,
			wantErr: ErrConfiguration,
		},
		{
			name:    "Probabilities disagree with counts",
			input:   `{"order": 1, "states": [{"words": ["A"], "next": [{"word": "b.", "count": 1, "probability": 0.5}, {"word": "c.", "count": 1, "probability": 0.4}]}]}`,
			wantErr: ErrInvalidDistribution,
		},
		{
			name:    "Empty distribution",
			input:   `{"order": 1, "states": [{"words": ["A"], "next": []}]}`,
			wantErr: ErrInvalidDistribution,
		},
		{
			name:    "Duplicate state",
			input:   `{"order": 1, "states": [{"words": ["A"], "next": [{"word": "b.", "count": 1, "probability": 1}]}, {"words": ["A"], "next": [{"word": "c.", "count": 1, "probability": 1}]}]}`,
			wantErr: ErrConfiguration,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportChart(strings.NewReader(tc.input))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ImportChart() error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := ImportChart(strings.NewReader("{not json")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
