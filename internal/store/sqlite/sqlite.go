package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatrelay/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs a custom setup function instead of
// the built-in schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user with a hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	now := time.Now()
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var (
		user      store.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt)

	return &user, nil
}

// ==== HistoryStore implementation ====

// AppendHistory persists an entry and prunes the room down to keep rows.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *store.HistoryEntry, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO history (room, author, text, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.Room, entry.Author, entry.Text, entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if keep > 0 {
		// Everything at or below the (keep+1)-th newest id goes.
		_, err = tx.ExecContext(ctx, `
			DELETE FROM history
			WHERE room = ? AND id <= (
				SELECT id FROM history WHERE room = ? ORDER BY id DESC LIMIT 1 OFFSET ?
			)
		`, entry.Room, entry.Room, keep)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}

	entry.ID = id
	return nil
}

// LoadHistory returns the newest perRoom entries of each room, oldest first.
func (s *SQLiteStore) LoadHistory(ctx context.Context, perRoom int) ([]*store.HistoryEntry, error) {
	query := `
		SELECT id, room, author, text, created_at
		FROM (
			SELECT id, room, author, text, created_at,
			       ROW_NUMBER() OVER (PARTITION BY room ORDER BY id DESC) AS rn
			FROM history
		)
		WHERE ? <= 0 OR rn <= ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, perRoom, perRoom)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// ListHistory returns up to limit most recent entries of a room, oldest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, room string, limit int) ([]*store.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	query := `
		SELECT id, room, author, text, created_at
		FROM (
			SELECT id, room, author, text, created_at
			FROM history
			WHERE room = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query room history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// ClearHistory deletes the history of one room, or all rooms if room is empty.
func (s *SQLiteStore) ClearHistory(ctx context.Context, room string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if room == "" {
		result, err = s.db.ExecContext(ctx, `DELETE FROM history`)
	} else {
		result, err = s.db.ExecContext(ctx, `DELETE FROM history WHERE room = ?`, room)
	}
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RenameHistoryRoom moves all entries of oldName under newName.
func (s *SQLiteStore) RenameHistoryRoom(ctx context.Context, oldName, newName string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE history SET room = ? WHERE room = ?`, newName, oldName); err != nil {
		return fmt.Errorf("rename history room: %w", err)
	}
	return nil
}

func scanHistory(rows *sql.Rows) ([]*store.HistoryEntry, error) {
	var entries []*store.HistoryEntry
	for rows.Next() {
		var (
			e         store.HistoryEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Room, &e.Author, &e.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
