package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventAuthOK confirms a successful login or registration.
	EventAuthOK EventKind = iota
	// EventRoomMessage carries a chat line (user or SERVER notice) of a room.
	EventRoomMessage
	// EventPrivateMessage carries a direct message.
	EventPrivateMessage
	// EventImage carries an inline image posted to a room.
	EventImage
	// EventUserList carries online users, or members of Room when set.
	EventUserList
	// EventRoomList carries the room directory.
	EventRoomList
	// EventRoomJoined confirms the client's new current room.
	EventRoomJoined
	// EventHistory delivers recent messages of a room.
	EventHistory
	// EventKicked tells a client it was removed from a room.
	EventKicked
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Text     string
	IsAdmin  bool
	Info     RoomInfo
	Message  Message
	Messages []Message // EventHistory
	Users    []string  // EventUserList
	Rooms    []RoomInfo
	Error    *CoreError
}
