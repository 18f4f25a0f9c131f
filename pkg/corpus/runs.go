package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentRuns is the number of runs RecentRuns returns for a limit of 0.
const DefaultRecentRuns = 50

// Run records one completed generation.
type Run struct {
	Id          string    `json:"id"`
	CorpusName  string    `json:"corpus_name,omitempty"`
	StateSize   int       `json:"state_size"`
	MinWords    int       `json:"min_words"`
	WordCount   int       `json:"word_count"`
	ExtraWords  int       `json:"extra_words"`
	Fallbacks   int       `json:"fallbacks"`
	Substituted bool      `json:"substituted"`
	Rewritten   bool      `json:"rewritten"`
	Output      string    `json:"output"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunSummary aggregates the run history.
type RunSummary struct {
	Runs           int     `json:"runs"`
	TotalWords     int     `json:"total_words"`
	AverageWords   float64 `json:"average_words"`
	TotalFallbacks int     `json:"total_fallbacks"`
	Rewritten      int     `json:"rewritten"`
}

// RecordRun stores a run. A run without an ID is given a random UUID and a
// zero CreatedAt is set to now; the stored run is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.Id == "" {
		run.Id = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.CreatedAt = run.CreatedAt.Truncate(time.Second)

	_, err := s.stmtInsertRun.ExecContext(ctx,
		run.Id, run.CorpusName, run.StateSize, run.MinWords, run.WordCount,
		run.ExtraWords, run.Fallbacks, run.Substituted, run.Rewritten, run.Output,
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run %s: %w", run.Id, err)
	}

	s.logger.DebugContext(ctx, "Generation run recorded",
		slog.String("run_id", run.Id),
		slog.String("corpus_name", run.CorpusName),
		slog.Int("word_count", run.WordCount),
	)
	return run, nil
}

// RecentRuns returns up to limit runs, newest first. A limit of 0 or less
// selects DefaultRecentRuns.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	rows, err := s.stmtRecentRuns.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		var createdAt int64
		err = rows.Scan(&run.Id, &run.CorpusName, &run.StateSize, &run.MinWords, &run.WordCount,
			&run.ExtraWords, &run.Fallbacks, &run.Substituted, &run.Rewritten, &run.Output, &createdAt)
		if err != nil {
			return nil, err
		}
		run.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// RunSummary aggregates every recorded run.
func (s *Store) RunSummary(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), coalesce(SUM(word_count), 0), coalesce(SUM(fallbacks), 0), coalesce(SUM(rewritten), 0)
FROM generation_runs;`).Scan(&summary.Runs, &summary.TotalWords, &summary.TotalFallbacks, &summary.Rewritten)
	if err != nil {
		return RunSummary{}, fmt.Errorf("could not summarize runs: %w", err)
	}
	if summary.Runs > 0 {
		summary.AverageWords = float64(summary.TotalWords) / float64(summary.Runs)
	}
	return summary, nil
}
