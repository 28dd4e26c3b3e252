package core

import (
	"sort"
	"strings"
)

// DefaultRoom always exists, has no password and no creator.
const DefaultRoom = "lobby"

const maxRoomNameLen = 64

// registry maps room names to rooms. It is not safe for concurrent use; the
// Hub guards it.
type registry struct {
	rooms map[string]*Room
}

func newRegistry() *registry {
	return &registry{
		rooms: map[string]*Room{
			DefaultRoom: NewRoom(DefaultRoom, "", ""),
		},
	}
}

func (g *registry) get(name string) *Room {
	return g.rooms[name]
}

func (g *registry) lobby() *Room {
	return g.rooms[DefaultRoom]
}

func (g *registry) create(name, creator, password string) (*Room, *CoreError) {
	if _, exists := g.rooms[name]; exists {
		return nil, NewError(ErrCodeRoomExists, "room %q already exists", name)
	}
	r := NewRoom(name, creator, password)
	g.rooms[name] = r
	return r, nil
}

func (g *registry) rename(r *Room, newName string) *CoreError {
	if _, exists := g.rooms[newName]; exists {
		return NewError(ErrCodeRoomExists, "room %q already exists", newName)
	}
	delete(g.rooms, r.Name)
	r.Name = newName
	g.rooms[newName] = r
	return nil
}

func (g *registry) remove(r *Room) {
	if r.Name == DefaultRoom {
		return
	}
	delete(g.rooms, r.Name)
}

// list returns every room, default room first, the rest by name.
func (g *registry) list() []RoomInfo {
	out := make([]RoomInfo, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == DefaultRoom || out[j].Name == DefaultRoom {
			return out[i].Name == DefaultRoom
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// normalizeRoomName trims the name and checks its length.
func normalizeRoomName(name string) (string, *CoreError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", coreError(ErrCodeBadRequest, "room name is required")
	}
	if len(name) > maxRoomNameLen {
		return "", NewError(ErrCodeBadRequest, "room name must be at most %d characters", maxRoomNameLen)
	}
	return name, nil
}
