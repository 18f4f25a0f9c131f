package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Info holds the metadata for a named corpus.
type Info struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	Documents  int    `json:"documents"`
	Characters int    `json:"characters"`
}

// Document is a single piece of text added to a corpus.
type Document struct {
	Id      int       `json:"id"`
	Source  string    `json:"source"`
	Body    string    `json:"body"`
	AddedAt time.Time `json:"added_at"`
}

// Stats holds aggregated statistics across every corpus in the store.
type Stats struct {
	Corpora    []Info `json:"corpora"`
	Documents  int    `json:"documents"`
	Characters int    `json:"characters"`
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name is longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// CreateCorpus inserts a new, empty corpus. It fails with ErrCorpusExists if
// the name is already in use.
func (s *Store) CreateCorpus(ctx context.Context, name string) (Info, error) {
	if err := validateName(name); err != nil {
		return Info{}, err
	}
	name = strings.TrimSpace(name)

	var id int
	err := s.stmtAddCorpus.QueryRowContext(ctx, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, fmt.Errorf("%w: %q", ErrCorpusExists, name)
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to create corpus %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Corpus created",
		slog.String("corpus_name", name),
		slog.Int("corpus_id", id),
	)
	return Info{Id: id, Name: name}, nil
}

// GetCorpusInfo retrieves the metadata for a single corpus specified by name.
// A missing corpus returns an error wrapping sql.ErrNoRows.
func (s *Store) GetCorpusInfo(ctx context.Context, name string) (Info, error) {
	info := Info{Name: name}
	if err := s.stmtGetCorpus.QueryRowContext(ctx, name).Scan(&info.Id); err != nil {
		return Info{}, fmt.Errorf("corpus %q: %w", name, err)
	}
	if err := s.stmtDocumentCount.QueryRowContext(ctx, info.Id).Scan(&info.Documents, &info.Characters); err != nil {
		return Info{}, fmt.Errorf("could not count documents for corpus %q: %w", name, err)
	}
	return info, nil
}

// ListCorpora retrieves metadata for all corpora, sorted by name.
func (s *Store) ListCorpora(ctx context.Context) ([]Info, error) {
	rows, err := s.stmtListCorpora.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	corpora := make([]Info, 0)
	for rows.Next() {
		var info Info
		if err = rows.Scan(&info.Id, &info.Name, &info.Documents, &info.Characters); err != nil {
			return nil, err
		}
		corpora = append(corpora, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return corpora, nil
}

// AddDocument appends a document to the corpus and returns it with its
// assigned ID. Bodies made only of whitespace are rejected.
func (s *Store) AddDocument(ctx context.Context, info Info, source, body string) (Document, error) {
	if strings.TrimSpace(body) == "" {
		return Document{}, ErrEmptyDocument
	}

	doc := Document{Source: source, Body: body, AddedAt: time.Now().UTC().Truncate(time.Second)}
	err := s.stmtAddDocument.QueryRowContext(ctx, info.Id, source, body, doc.AddedAt.Unix()).Scan(&doc.Id)
	if err != nil {
		return Document{}, fmt.Errorf("failed to add document to corpus %q: %w", info.Name, err)
	}

	s.logger.DebugContext(ctx, "Document added",
		slog.String("corpus_name", info.Name),
		slog.Int("document_id", doc.Id),
		slog.String("source", source),
		slog.Int("characters", len(body)),
	)
	return doc, nil
}

// Documents returns every document in the corpus, in the order they were added.
func (s *Store) Documents(ctx context.Context, info Info) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT document_id, source, body, added_at FROM corpus_documents WHERE corpus_id = ? ORDER BY document_id", info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query documents: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	docs := make([]Document, 0)
	for rows.Next() {
		var doc Document
		var addedAt int64
		if err = rows.Scan(&doc.Id, &doc.Source, &doc.Body, &addedAt); err != nil {
			return nil, err
		}
		doc.AddedAt = time.Unix(addedAt, 0).UTC()
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Text returns the corpus text: every document body joined with a newline,
// in insertion order.
func (s *Store) Text(ctx context.Context, info Info) (string, error) {
	rows, err := s.stmtCorpusBodies.QueryContext(ctx, info.Id)
	if err != nil {
		return "", fmt.Errorf("could not query corpus %q: %w", info.Name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var sb strings.Builder
	first := true
	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			return "", err
		}
		if !first {
			sb.WriteByte('\n')
		}
		sb.WriteString(body)
		first = false
	}
	if err = rows.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RemoveCorpus deletes a corpus and all of its documents from the database.
// The operation is performed within a transaction.
func (s *Store) RemoveCorpus(ctx context.Context, info Info) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM corpus_documents WHERE corpus_id = ?", info.Id); err != nil {
		return fmt.Errorf("failed to remove documents for corpus %d: %w", info.Id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM corpus_sets WHERE corpus_id = ?", info.Id)
	if err != nil {
		return fmt.Errorf("failed to remove corpus %d: %w", info.Id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("corpus %q: %w", info.Name, sql.ErrNoRows)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Corpus removed successfully",
		slog.String("corpus_name", info.Name),
		slog.Int("corpus_id", info.Id),
	)
	return nil
}

// Stats returns a snapshot of statistics for every corpus in the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	corpora, err := s.ListCorpora(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Corpora: corpora}
	for _, c := range corpora {
		stats.Documents += c.Documents
		stats.Characters += c.Characters
	}
	return stats, nil
}
