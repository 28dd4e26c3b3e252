package core

import "time"

// SystemUser is the author of notices generated by the server.
const SystemUser = "SERVER"

// Message is the domain model for a chat, private or image message.
type Message struct {
	Room      string
	From      string
	To        string // set for private messages
	Text      string
	CreatedAt time.Time
	Image     *Attachment
}

// Attachment is an inline image relayed as-is to room members.
type Attachment struct {
	Filename string
	Data     string // base64, never decoded by the server
	Caption  string
}

// RoomInfo is the public description of a room.
type RoomInfo struct {
	Name    string
	Creator string
	Private bool
	Members int
}
