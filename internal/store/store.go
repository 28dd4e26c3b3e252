package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// HistoryEntry is one persisted line of room history.
type HistoryEntry struct {
	ID        int64
	Room      string
	Author    string
	Text      string
	CreatedAt time.Time
}

// UserStore handles credential persistence.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrDuplicate if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by exact username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// HistoryStore handles history persistence.
type HistoryStore interface {
	// AppendHistory persists an entry and drops the oldest rows of that room
	// so that at most keep rows remain. keep <= 0 disables pruning.
	AppendHistory(ctx context.Context, entry *HistoryEntry, keep int) error

	// LoadHistory returns up to perRoom most recent entries of every room,
	// oldest first.
	LoadHistory(ctx context.Context, perRoom int) ([]*HistoryEntry, error)

	// ListHistory returns up to limit most recent entries of a room, oldest first.
	ListHistory(ctx context.Context, room string, limit int) ([]*HistoryEntry, error)

	// ClearHistory deletes the history of a room, or of every room when room is empty.
	ClearHistory(ctx context.Context, room string) (int64, error)

	// RenameHistoryRoom moves all entries of a room under a new name.
	RenameHistoryRoom(ctx context.Context, oldName, newName string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	HistoryStore

	// Close closes the underlying database connection.
	Close() error
}
