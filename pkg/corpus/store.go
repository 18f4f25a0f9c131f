package corpus

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	// ErrCorpusExists is returned by CreateCorpus when the name is taken.
	ErrCorpusExists = errors.New("corpus already exists")
	// ErrInvalidName is returned when a corpus name is empty or too long.
	ErrInvalidName = errors.New("invalid corpus name")
	// ErrEmptyDocument is returned by AddDocument for a blank body.
	ErrEmptyDocument = errors.New("document body is empty")
)

// MaxNameLength bounds corpus names.
const MaxNameLength = 128

// SetupSchema initializes the corpus and run history tables in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaSets = `
CREATE TABLE IF NOT EXISTS corpus_sets (
    corpus_id INTEGER PRIMARY KEY,
    corpus_name TEXT NOT NULL UNIQUE
);
`
		schemaDocuments = `
CREATE TABLE IF NOT EXISTS corpus_documents (
    document_id INTEGER PRIMARY KEY,
    corpus_id INTEGER NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    added_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corpus_documents_corpus ON corpus_documents (corpus_id, document_id);
`
		schemaRuns = `
CREATE TABLE IF NOT EXISTS generation_runs (
    run_id TEXT PRIMARY KEY,
    corpus_name TEXT NOT NULL DEFAULT '',
    state_size INTEGER NOT NULL,
    min_words INTEGER NOT NULL,
    word_count INTEGER NOT NULL,
    extra_words INTEGER NOT NULL,
    fallbacks INTEGER NOT NULL,
    substituted INTEGER NOT NULL DEFAULT 0,
    rewritten INTEGER NOT NULL DEFAULT 0,
    output TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generation_runs_created ON generation_runs (created_at);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaSets); err != nil {
		return fmt.Errorf("could not create corpus schema: %w", err)
	}

	if _, err = tx.Exec(schemaDocuments); err != nil {
		return fmt.Errorf("could not create documents schema: %w", err)
	}

	if _, err = tx.Exec(schemaRuns); err != nil {
		return fmt.Errorf("could not create runs schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store is the entry point for reading and writing corpora. It holds the
// database connection and prepared SQL statements for the common queries.
type Store struct {
	db                *sql.DB
	stmtGetCorpus     *sql.Stmt
	stmtListCorpora   *sql.Stmt
	stmtAddCorpus     *sql.Stmt
	stmtAddDocument   *sql.Stmt
	stmtCorpusBodies  *sql.Stmt
	stmtDocumentCount *sql.Stmt
	stmtInsertRun     *sql.Stmt
	stmtRecentRuns    *sql.Stmt
	logger            *slog.Logger
}

// NewStore creates a Store over db, whose schema must already be set up with
// SetupSchema. It pre-compiles all necessary SQL statements, returning an
// error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetCorpus, err := db.Prepare(`SELECT corpus_id FROM corpus_sets WHERE corpus_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListCorpora, err := db.Prepare(`
SELECT s.corpus_id, s.corpus_name, COUNT(d.document_id), coalesce(SUM(length(d.body)), 0)
FROM corpus_sets s LEFT JOIN corpus_documents d ON d.corpus_id = s.corpus_id
GROUP BY s.corpus_id ORDER BY s.corpus_name;`)
	if err != nil {
		return nil, err
	}

	stmtAddCorpus, err := db.Prepare(`INSERT INTO corpus_sets (corpus_name) VALUES (?) ON CONFLICT(corpus_name) DO NOTHING RETURNING corpus_id;`)
	if err != nil {
		return nil, err
	}

	stmtAddDocument, err := db.Prepare(`INSERT INTO corpus_documents (corpus_id, source, body, added_at) VALUES (?, ?, ?, ?) RETURNING document_id;`)
	if err != nil {
		return nil, err
	}

	stmtCorpusBodies, err := db.Prepare(`SELECT body FROM corpus_documents WHERE corpus_id = ? ORDER BY document_id;`)
	if err != nil {
		return nil, err
	}

	stmtDocumentCount, err := db.Prepare(`SELECT COUNT(*), coalesce(SUM(length(body)), 0) FROM corpus_documents WHERE corpus_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsertRun, err := db.Prepare(`
INSERT INTO generation_runs (run_id, corpus_name, state_size, min_words, word_count, extra_words, fallbacks, substituted, rewritten, output, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtRecentRuns, err := db.Prepare(`
SELECT run_id, corpus_name, state_size, min_words, word_count, extra_words, fallbacks, substituted, rewritten, output, created_at
FROM generation_runs ORDER BY created_at DESC, rowid DESC LIMIT ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                db,
		stmtGetCorpus:     stmtGetCorpus,
		stmtListCorpora:   stmtListCorpora,
		stmtAddCorpus:     stmtAddCorpus,
		stmtAddDocument:   stmtAddDocument,
		stmtCorpusBodies:  stmtCorpusBodies,
		stmtDocumentCount: stmtDocumentCount,
		stmtInsertRun:     stmtInsertRun,
		stmtRecentRuns:    stmtRecentRuns,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. The
// underlying database is left open.
func (s *Store) Close() {
	_ = s.stmtGetCorpus.Close()
	_ = s.stmtListCorpora.Close()
	_ = s.stmtAddCorpus.Close()
	_ = s.stmtAddDocument.Close()
	_ = s.stmtCorpusBodies.Close()
	_ = s.stmtDocumentCount.Close()
	_ = s.stmtInsertRun.Close()
	_ = s.stmtRecentRuns.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
