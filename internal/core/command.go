package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandChat sends a message to the client's current room.
	CommandChat CommandKind = iota
	// CommandPrivate sends a direct message to one online user.
	CommandPrivate
	// CommandImage relays an inline image to the current room.
	CommandImage
	// CommandCreateRoom creates a room owned by the client and moves it there.
	CommandCreateRoom
	// CommandJoinRoom moves the client into an existing room.
	CommandJoinRoom
	// CommandLeaveRoom moves the client back to the default room.
	CommandLeaveRoom
	// CommandListUsers asks for online users or the members of a room.
	CommandListUsers
	// CommandListRooms asks for the room directory.
	CommandListRooms
	// CommandHistory asks for the recent history of a room.
	CommandHistory
	// CommandKick moves a member of the client's room to the default room.
	CommandKick
	// CommandRenameRoom renames a room owned by the client.
	CommandRenameRoom
	// CommandSetPassword changes or clears the password of an owned room.
	CommandSetPassword
	// CommandDeleteRoom removes an owned room.
	CommandDeleteRoom
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Room     string
	Target   string
	NewName  string
	Password string
	Text     string
	Limit    int
	Image    *Attachment
}
