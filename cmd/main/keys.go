package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	apiKeyPrefix = "dros_"
	masterScope  = "*"
	// primaryKeyID is the key created while the API was still open. It can
	// not be deleted.
	primaryKeyID = 1
)

// knownScopes lists every scope a handler checks for.
var knownScopes = map[string]struct{}{
	masterScope:      {},
	"corpus:read":    {},
	"corpus:write":   {},
	"generate":       {},
	"stats:read":     {},
	"server:config":  {},
	"server:control": {},
	"auth:manage":    {},
}

const keySchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL,
    created_at    INTEGER   NOT NULL DEFAULT 0
);
`

var (
	errUnknownScope   = errors.New("unknown scope")
	errNoScopes       = errors.New("at least one scope is required")
	errPrimaryKey     = errors.New("the primary master key can not be deleted")
	errKeyNotFound    = errors.New("key not found")
	errKeyUnavailable = errors.New("key store unavailable")
)

// scopeSet is the set of scopes granted to a request.
type scopeSet map[string]struct{}

func newScopeSet(scopes ...string) scopeSet {
	set := make(scopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// allows reports whether the set grants scope, directly or through the
// master scope.
func (s scopeSet) allows(scope string) bool {
	if _, ok := s[masterScope]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

// sorted returns the scopes in a stable order for responses.
func (s scopeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// parseScopes validates requested scopes and removes duplicates.
func parseScopes(requested []string) (scopeSet, error) {
	set := make(scopeSet, len(requested))
	for _, s := range requested {
		if _, ok := knownScopes[s]; !ok {
			return nil, fmt.Errorf("%w %q", errUnknownScope, s)
		}
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errNoScopes
	}
	return set, nil
}

// APIKeyInfo describes a stored key. The raw key is never stored.
type APIKeyInfo struct {
	ID          int       `json:"id"`
	Scopes      []string  `json:"scopes"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// keyStore persists hashed API keys in the app database.
type keyStore struct {
	db *sql.DB
}

func setupKeySchema(db *sql.DB) error {
	_, err := db.Exec(keySchema)
	return err
}

func (k keyStore) count(ctx context.Context) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys;`).Scan(&n)
	return n, err
}

// lookup returns the scopes of the key whose hash matches raw. It returns
// errKeyNotFound for an unknown key.
func (k keyStore) lookup(ctx context.Context, raw string) (scopeSet, error) {
	var scopes string
	err := k.db.QueryRowContext(ctx, `SELECT scopes FROM api_keys WHERE key_hash = ?;`, hashAPIKey(raw)).Scan(&scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errKeyUnavailable, err)
	}
	return newScopeSet(strings.Fields(scopes)...), nil
}

func (k keyStore) list(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT id, scopes, description, created_at FROM api_keys ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var (
			info    APIKeyInfo
			scopes  string
			created int64
		)
		if err = rows.Scan(&info.ID, &scopes, &info.Description, &created); err != nil {
			return nil, err
		}
		info.Scopes = strings.Fields(scopes)
		info.CreatedAt = time.Unix(created, 0).UTC()
		keys = append(keys, info)
	}
	return keys, rows.Err()
}

// create stores a new key and returns its id and raw value. The first key
// ever created holds the master scope whatever was asked for, so the API can
// not be locked out of key management.
func (k keyStore) create(ctx context.Context, scopes scopeSet, description string) (int, string, scopeSet, error) {
	n, err := k.count(ctx)
	if err != nil {
		return 0, "", nil, err
	}
	if n == 0 {
		scopes = newScopeSet(masterScope)
	}

	raw, err := generateAPIKey()
	if err != nil {
		return 0, "", nil, err
	}

	var id int
	err = k.db.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, scopes, description, created_at) VALUES (?, ?, ?, ?) RETURNING id;`,
		hashAPIKey(raw), strings.Join(scopes.sorted(), " "), description, time.Now().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, "", nil, err
	}
	return id, raw, scopes, nil
}

func (k keyStore) remove(ctx context.Context, id int) error {
	if id == primaryKeyID {
		return errPrimaryKey
	}
	res, err := k.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errKeyNotFound
	}
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
