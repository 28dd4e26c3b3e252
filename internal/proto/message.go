// Package proto defines the NDJSON wire format: one JSON object per line,
// each carrying a "type" discriminator.
package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message kinds (client -> server).
const (
	InboundTypeAuth           = "auth"
	InboundTypeChat           = "chat"
	InboundTypePrivate        = "private"
	InboundTypeImage          = "image"
	InboundTypeCreateRoom     = "create_room"
	InboundTypeJoinRoom       = "join_room"
	InboundTypeLeaveRoom      = "leave_room"
	InboundTypeListUsers      = "list_users"
	InboundTypeListRooms      = "list_rooms"
	InboundTypeGetHistory     = "get_history"
	InboundTypeKick           = "admin_kick"
	InboundTypeRenameRoom     = "admin_rename_room"
	InboundTypeChangePassword = "admin_change_password"
	InboundTypeDeleteRoom     = "admin_delete_room"
	InboundTypeBye            = "bye"
)

// Outbound message kinds (server -> client).
const (
	OutboundTypeAuthOK      = "auth_ok"
	OutboundTypeError       = "error"
	OutboundTypeChat        = "chat"
	OutboundTypePrivate     = "private"
	OutboundTypeImage       = "image"
	OutboundTypeUserList    = "user_list"
	OutboundTypeRoomList    = "room_list"
	OutboundTypeRoomJoined  = "room_joined"
	OutboundTypeHistory     = "history"
	OutboundTypeAdminKicked = "admin_kicked"
)

// Auth actions.
const (
	AuthActionLogin    = "login"
	AuthActionRegister = "register"
)

// Timestamp layouts used on the wire.
const (
	LiveTimeLayout    = "15:04:05"
	HistoryTimeLayout = "2006-01-02 15:04:05"
)

// ErrMissingType is returned when a frame has no type field.
var ErrMissingType = errors.New("frame has no type")

// Inbound is the union of every field a client frame may carry. Only the
// fields relevant to Type are read.
type Inbound struct {
	Type        string `json:"type"`
	Action      string `json:"action,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Message     string `json:"message,omitempty"`
	Room        string `json:"room,omitempty"`
	To          string `json:"to,omitempty"`
	Target      string `json:"target,omitempty"`
	NewName     string `json:"new_name,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Data        string `json:"data,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Decode parses one frame. Surrounding whitespace is ignored.
func Decode(line []byte) (*Inbound, error) {
	line = bytes.TrimSpace(line)
	var in Inbound
	if err := json.Unmarshal(line, &in); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if in.Type == "" {
		return nil, ErrMissingType
	}
	return &in, nil
}

// Encode renders an outbound frame without the trailing newline.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// AuthOK confirms authentication.
type AuthOK struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// Error describes a failed request.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Chat is a room message; Sender is "SERVER" for notices.
type Chat struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Room      string `json:"room"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Private is a direct message, sent to both parties.
type Private struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Image is an inline image posted to a room.
type Image struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Room      string `json:"room"`
	Filename  string `json:"filename"`
	Data      string `json:"data"`
	Caption   string `json:"caption"`
	Timestamp string `json:"timestamp"`
}

// UserList carries online users, or the members of Room when set.
type UserList struct {
	Type  string   `json:"type"`
	Room  string   `json:"room,omitempty"`
	Users []string `json:"users"`
}

// RoomSummary is one row of the room directory.
type RoomSummary struct {
	Name        string `json:"name"`
	Creator     string `json:"creator"`
	IsPrivate   bool   `json:"is_private"`
	MemberCount int    `json:"member_count"`
}

// RoomList carries the room directory.
type RoomList struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// RoomJoined confirms the client's current room.
type RoomJoined struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Creator string `json:"creator"`
	IsAdmin bool   `json:"is_admin"`
}

// HistoryItem is one line of a history reply.
type HistoryItem struct {
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

// History carries recent lines of a room, oldest first.
type History struct {
	Type    string        `json:"type"`
	Room    string        `json:"room"`
	History []HistoryItem `json:"history"`
}

// AdminKicked tells a client it was removed from a room.
type AdminKicked struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Message string `json:"message"`
}
