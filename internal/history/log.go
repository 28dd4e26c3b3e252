// Package history keeps a bounded, per-room record of chat and system
// messages, mirrored to durable storage.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/store"
)

// DefaultLimit is the per-room retention used when none is configured.
const DefaultLimit = 500

// Entry is a single history line.
type Entry struct {
	Room      string
	Author    string
	Text      string
	CreatedAt time.Time
}

// Log is an append-only, size-bounded history per room. The zero value is
// not usable; construct with New.
type Log struct {
	mu    sync.Mutex
	limit int
	rooms map[string][]Entry
	store store.HistoryStore
	now   func() time.Time
	log   *zerolog.Logger
}

// Option customizes a Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger attaches a logger for persistence failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Log) { l.log = logger }
}

// New builds a log keeping at most limit entries per room. st may be nil for
// a memory-only log.
func New(st store.HistoryStore, limit int, opts ...Option) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	nop := zerolog.Nop()
	l := &Log{
		limit: limit,
		rooms: make(map[string][]Entry),
		store: st,
		now:   time.Now,
		log:   &nop,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory contents with what the store holds.
func (l *Log) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	rows, err := l.store.LoadHistory(ctx, l.limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rooms = make(map[string][]Entry)
	for _, r := range rows {
		l.push(Entry{Room: r.Room, Author: r.Author, Text: r.Text, CreatedAt: r.CreatedAt})
	}
	return nil
}

// Append records a new entry stamped with the current time. The entry is kept
// in memory even if persisting fails; the error is still returned.
func (l *Log) Append(ctx context.Context, room, author, text string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Room: room, Author: author, Text: text, CreatedAt: l.now()}
	l.push(e)

	if l.store == nil {
		return e, nil
	}
	err := l.store.AppendHistory(ctx, &store.HistoryEntry{
		Room:      e.Room,
		Author:    e.Author,
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
	}, l.limit)
	if err != nil {
		l.log.Warn().Err(err).Str("room", room).Msg("persist history entry")
		return e, fmt.Errorf("persist history: %w", err)
	}
	return e, nil
}

// Recent returns at most limit of the newest entries of room, oldest first.
// limit <= 0 returns everything retained.
func (l *Log) Recent(room string, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.rooms[room]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Clear wipes the history of room, or of every room if room is empty.
func (l *Log) Clear(ctx context.Context, room string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if room == "" {
		l.rooms = make(map[string][]Entry)
	} else {
		delete(l.rooms, room)
	}

	if l.store == nil {
		return nil
	}
	if _, err := l.store.ClearHistory(ctx, room); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Rename moves the history of oldName under newName.
func (l *Log) Rename(ctx context.Context, oldName, newName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entries, ok := l.rooms[oldName]; ok {
		for i := range entries {
			entries[i].Room = newName
		}
		l.rooms[newName] = append(l.rooms[newName], entries...)
		delete(l.rooms, oldName)
		l.trim(newName)
	}

	if l.store == nil {
		return nil
	}
	if err := l.store.RenameHistoryRoom(ctx, oldName, newName); err != nil {
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}

func (l *Log) push(e Entry) {
	l.rooms[e.Room] = append(l.rooms[e.Room], e)
	l.trim(e.Room)
}

// trim drops the oldest entries of room beyond the limit.
func (l *Log) trim(room string) {
	entries := l.rooms[room]
	if over := len(entries) - l.limit; over > 0 {
		kept := make([]Entry, l.limit)
		copy(kept, entries[over:])
		l.rooms[room] = kept
	}
}
