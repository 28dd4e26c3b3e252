package core

import (
	"crypto/subtle"
	"sort"
)

// Room groups clients that currently share a conversation.
type Room struct {
	Name     string
	Creator  string // empty for the default room
	password string
	clients  map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name, creator, password string) *Room {
	return &Room{
		Name:     name,
		Creator:  creator,
		password: password,
		clients:  make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Has reports whether c is a member.
func (r *Room) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Private reports whether joining requires a password.
func (r *Room) Private() bool {
	return r.password != ""
}

// CheckPassword compares the supplied password with the room's.
func (r *Room) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(r.password), []byte(password)) == 1
}

// IsAdmin reports whether username administers the room.
func (r *Room) IsAdmin(username string) bool {
	return r.Creator != "" && r.Creator == username
}

// Clients returns members ordered by username.
func (r *Room) Clients() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Usernames returns member names in order.
func (r *Room) Usernames() []string {
	clients := r.Clients()
	out := make([]string, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.Name)
	}
	return out
}

// Info describes the room for directory listings.
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		Name:    r.Name,
		Creator: r.Creator,
		Private: r.Private(),
		Members: len(r.clients),
	}
}
