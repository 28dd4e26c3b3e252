package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/history"
)

// DefaultBacklog is how many history entries a client gets on joining a room.
const DefaultBacklog = 50

// HistoryLog is the bounded message record the Hub appends to.
type HistoryLog interface {
	Append(ctx context.Context, room, author, text string) (history.Entry, error)
	Recent(room string, limit int) []history.Entry
	Clear(ctx context.Context, room string) error
	Rename(ctx context.Context, oldName, newName string) error
}

// Hub is the session manager. It owns the room registry and the roster of
// authenticated clients behind a single lock, so every room sees broadcasts
// in the order the Hub accepted them and history is appended in that order.
type Hub struct {
	mu      sync.Mutex
	rooms   *registry
	clients map[string]*Client // by session id
	byName  map[string]*Client
	history HistoryLog
	backlog int
	now     func() time.Time
	log     *zerolog.Logger
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger used for evictions and persistence failures.
func WithLogger(logger *zerolog.Logger) HubOption {
	return func(h *Hub) { h.log = logger }
}

// WithBacklog sets how many history entries are sent on join.
func WithBacklog(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.backlog = n
		}
	}
}

// WithClock overrides the time source for private messages.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub with the default room in place. A nil log keeps
// history in memory only.
func NewHub(log HistoryLog, opts ...HubOption) *Hub {
	if log == nil {
		log = history.New(nil, history.DefaultLimit)
	}
	nop := zerolog.Nop()
	h := &Hub{
		rooms:   newRegistry(),
		clients: make(map[string]*Client),
		byName:  make(map[string]*Client),
		history: log,
		backlog: DefaultBacklog,
		now:     time.Now,
		log:     &nop,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach registers an authenticated client, puts it in the default room and
// announces the new roster. A username may only be online once. An error is
// also returned if c could not take its own join events and was evicted.
func (h *Hub) Attach(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, online := h.byName[c.Name]; online {
		return NewError(ErrCodeAlreadyOnline, "user %q is already connected", c.Name)
	}

	h.clients[c.ID] = c
	h.byName[c.Name] = c

	b := &batch{}
	b.send(c, &Event{Kind: EventAuthOK, User: c.Name})
	h.moveLocked(b, c, h.rooms.lobby(), "")
	h.broadcastDirectoryLocked(b)
	h.flushLocked(b)

	if h.clients[c.ID] != c {
		return NewError(ErrCodeInternal, "session for %q was dropped while joining", c.Name)
	}

	h.log.Info().Str("session_id", c.ID).Str("user", c.Name).Msg("client attached")
	return nil
}

// Detach removes a client, announcing its departure. Safe to call more than
// once and concurrently with eviction or kicks.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.ID] != c {
		c.close()
		return
	}
	b := &batch{}
	h.removeLocked(b, c)
	h.flushLocked(b)
}

// Handle executes one command on behalf of c. Domain failures are reported
// back to c as an error event.
func (h *Hub) Handle(c *Client, cmd *Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.ID] != c {
		return
	}

	b := &batch{}
	if err := h.dispatch(b, c, cmd); err != nil {
		b.send(c, &Event{Kind: EventError, Error: err})
	}
	h.flushLocked(b)
}

// Shutdown drops every client without notices.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		if r := h.rooms.get(c.room); r != nil {
			r.RemoveClient(c)
		}
		c.close()
	}
	h.clients = make(map[string]*Client)
	h.byName = make(map[string]*Client)
}

// Rooms returns the room directory.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.list()
}

// Online returns the usernames of connected clients in order.
func (h *Hub) Online() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onlineLocked()
}

// Members returns the usernames in a room.
func (h *Hub) Members(room string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms.get(room)
	if r == nil {
		return nil, NewError(ErrCodeNotFound, "room %q not found", room)
	}
	return r.Usernames(), nil
}

// CurrentRoom returns the room c is in, or "" if c is not attached.
func (h *Hub) CurrentRoom(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.ID] != c {
		return ""
	}
	return c.room
}

func (h *Hub) onlineLocked() []string {
	names := make([]string, 0, len(h.byName))
	for name := range h.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// moveLocked takes c out of its current room (with a leave notice) and into
// to. The mover gets room_joined and the room backlog before the join notice.
func (h *Hub) moveLocked(b *batch, c *Client, to *Room, leaveText string) {
	if from := h.rooms.get(c.room); from != nil && from.RemoveClient(c) {
		if leaveText == "" {
			leaveText = fmt.Sprintf("%s left the room", c.Name)
		}
		h.noticeLocked(b, from, leaveText)
	}

	c.room = to.Name
	b.send(c, &Event{Kind: EventRoomJoined, Room: to.Name, Info: to.Info(), IsAdmin: to.IsAdmin(c.Name)})
	b.send(c, h.historyEvent(to.Name, h.backlog))

	to.AddClient(c)
	h.noticeLocked(b, to, fmt.Sprintf("%s joined the room", c.Name))
}

// removeLocked drops c from the roster and its room. Idempotent.
func (h *Hub) removeLocked(b *batch, c *Client) {
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)
	if h.byName[c.Name] == c {
		delete(h.byName, c.Name)
	}

	if r := h.rooms.get(c.room); r != nil && r.RemoveClient(c) {
		h.noticeLocked(b, r, fmt.Sprintf("%s left the room", c.Name))
	}
	c.room = ""
	c.close()

	h.broadcastDirectoryLocked(b)
	h.log.Info().Str("session_id", c.ID).Str("user", c.Name).Msg("client detached")
}

// recordLocked appends to history and returns the message as broadcast.
func (h *Hub) recordLocked(room, author, text string) Message {
	entry, err := h.history.Append(context.Background(), room, author, text)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("history append failed")
	}
	return Message{Room: room, From: author, Text: text, CreatedAt: entry.CreatedAt}
}

func (h *Hub) noticeLocked(b *batch, r *Room, text string) {
	msg := h.recordLocked(r.Name, SystemUser, text)
	b.room(r, &Event{Kind: EventRoomMessage, Room: r.Name, Message: msg})
}

func (h *Hub) historyEvent(room string, limit int) *Event {
	entries := h.history.Recent(room, limit)
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, Message{Room: e.Room, From: e.Author, Text: e.Text, CreatedAt: e.CreatedAt})
	}
	return &Event{Kind: EventHistory, Room: room, Messages: msgs}
}

// broadcastDirectoryLocked sends the roster and room list to everyone.
func (h *Hub) broadcastDirectoryLocked(b *batch) {
	users := h.onlineLocked()
	rooms := h.rooms.list()
	for _, c := range h.sortedClientsLocked() {
		b.send(c, &Event{Kind: EventUserList, Users: users})
		b.send(c, &Event{Kind: EventRoomList, Rooms: rooms})
	}
}

func (h *Hub) broadcastRoomListLocked(b *batch) {
	rooms := h.rooms.list()
	for _, c := range h.sortedClientsLocked() {
		b.send(c, &Event{Kind: EventRoomList, Rooms: rooms})
	}
}

func (h *Hub) sortedClientsLocked() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// flushLocked delivers pending events without blocking. A client whose queue
// is full is evicted as if it had disconnected; the events that eviction
// produces are delivered in the next round.
func (h *Hub) flushLocked(b *batch) {
	for len(b.effects) > 0 {
		effects := b.effects
		b.effects = nil

		var slow []*Client
		for _, e := range effects {
			if h.clients[e.to.ID] != e.to {
				continue
			}
			select {
			case e.to.Events <- e.ev:
			default:
				slow = append(slow, e.to)
			}
		}

		for _, c := range slow {
			if h.clients[c.ID] != c {
				continue
			}
			h.log.Warn().Str("session_id", c.ID).Str("user", c.Name).Msg("evicting slow client")
			h.removeLocked(b, c)
		}
	}
}

type effect struct {
	to *Client
	ev *Event
}

// batch collects outbound events produced while handling one request.
type batch struct {
	effects []effect
}

func (b *batch) send(c *Client, ev *Event) {
	b.effects = append(b.effects, effect{to: c, ev: ev})
}

func (b *batch) room(r *Room, ev *Event) {
	for _, c := range r.Clients() {
		b.send(c, ev)
	}
}
