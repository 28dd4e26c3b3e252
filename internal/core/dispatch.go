package core

import (
	"context"
	"fmt"
	"strings"
)

// dispatch routes a command to its handler. It runs under the Hub lock and
// only records outbound events in b.
func (h *Hub) dispatch(b *batch, c *Client, cmd *Command) *CoreError {
	switch cmd.Kind {
	case CommandChat:
		return h.chat(b, c, cmd)
	case CommandPrivate:
		return h.private(b, c, cmd)
	case CommandImage:
		return h.image(b, c, cmd)
	case CommandCreateRoom:
		return h.createRoom(b, c, cmd)
	case CommandJoinRoom:
		return h.joinRoom(b, c, cmd)
	case CommandLeaveRoom:
		return h.leaveRoom(b, c)
	case CommandListUsers:
		return h.listUsers(b, c, cmd)
	case CommandListRooms:
		b.send(c, &Event{Kind: EventRoomList, Rooms: h.rooms.list()})
		return nil
	case CommandHistory:
		return h.getHistory(b, c, cmd)
	case CommandKick:
		return h.kick(b, c, cmd)
	case CommandRenameRoom:
		return h.renameRoom(b, c, cmd)
	case CommandSetPassword:
		return h.setPassword(b, c, cmd)
	case CommandDeleteRoom:
		return h.deleteRoom(b, c, cmd)
	default:
		return NewError(ErrCodeUnknownType, "unsupported command %d", cmd.Kind)
	}
}

func (h *Hub) currentRoomLocked(c *Client, requested string) (*Room, *CoreError) {
	if requested != "" && requested != c.room {
		return nil, NewError(ErrCodeNotInRoom, "you are not in room %q", requested)
	}
	r := h.rooms.get(c.room)
	if r == nil {
		return nil, coreError(ErrCodeNotInRoom, "you are not in a room")
	}
	return r, nil
}

func (h *Hub) chat(b *batch, c *Client, cmd *Command) *CoreError {
	if strings.TrimSpace(cmd.Text) == "" {
		return coreError(ErrCodeBadRequest, "message is empty")
	}
	r, err := h.currentRoomLocked(c, cmd.Room)
	if err != nil {
		return err
	}

	msg := h.recordLocked(r.Name, c.Name, cmd.Text)
	b.room(r, &Event{Kind: EventRoomMessage, Room: r.Name, Message: msg})
	return nil
}

func (h *Hub) image(b *batch, c *Client, cmd *Command) *CoreError {
	img := cmd.Image
	if img == nil || img.Data == "" || strings.TrimSpace(img.Filename) == "" {
		return coreError(ErrCodeBadRequest, "image filename and data are required")
	}
	r, err := h.currentRoomLocked(c, cmd.Room)
	if err != nil {
		return err
	}

	text := "[image] " + img.Filename
	if img.Caption != "" {
		text += " - " + img.Caption
	}
	msg := h.recordLocked(r.Name, c.Name, text)
	msg.Image = img
	b.room(r, &Event{Kind: EventImage, Room: r.Name, Message: msg})
	return nil
}

func (h *Hub) private(b *batch, c *Client, cmd *Command) *CoreError {
	if strings.TrimSpace(cmd.Text) == "" {
		return coreError(ErrCodeBadRequest, "message is empty")
	}
	if cmd.Target == "" {
		return coreError(ErrCodeBadRequest, "recipient is required")
	}
	if cmd.Target == c.Name {
		return coreError(ErrCodeBadRequest, "cannot send a private message to yourself")
	}
	target := h.byName[cmd.Target]
	if target == nil {
		return NewError(ErrCodeUserNotFound, "user %q is not online", cmd.Target)
	}

	msg := Message{From: c.Name, To: target.Name, Text: cmd.Text, CreatedAt: h.now()}
	ev := &Event{Kind: EventPrivateMessage, Message: msg}
	b.send(target, ev)
	b.send(c, ev)
	return nil
}

func (h *Hub) createRoom(b *batch, c *Client, cmd *Command) *CoreError {
	name, err := normalizeRoomName(cmd.Room)
	if err != nil {
		return err
	}
	r, err := h.rooms.create(name, c.Name, cmd.Password)
	if err != nil {
		return err
	}
	h.forgetHistoryLocked(name)

	h.log.Info().Str("room", name).Str("creator", c.Name).Bool("private", r.Private()).Msg("room created")
	h.moveLocked(b, c, r, "")
	h.broadcastRoomListLocked(b)
	return nil
}

func (h *Hub) joinRoom(b *batch, c *Client, cmd *Command) *CoreError {
	name := strings.TrimSpace(cmd.Room)
	if name == "" {
		return coreError(ErrCodeBadRequest, "room name is required")
	}
	r := h.rooms.get(name)
	if r == nil {
		return NewError(ErrCodeNotFound, "room %q not found", name)
	}
	if r.Name == c.room {
		return NewError(ErrCodeAlreadyJoined, "you are already in room %q", name)
	}
	if r.Private() && !r.IsAdmin(c.Name) && !r.CheckPassword(cmd.Password) {
		return NewError(ErrCodeAuthFailed, "wrong password for room %q", name)
	}

	h.moveLocked(b, c, r, "")
	h.broadcastRoomListLocked(b)
	return nil
}

func (h *Hub) leaveRoom(b *batch, c *Client) *CoreError {
	if c.room == DefaultRoom {
		return NewError(ErrCodeAlreadyJoined, "you are already in room %q", DefaultRoom)
	}
	h.moveLocked(b, c, h.rooms.lobby(), "")
	h.broadcastRoomListLocked(b)
	return nil
}

func (h *Hub) listUsers(b *batch, c *Client, cmd *Command) *CoreError {
	if cmd.Room == "" {
		b.send(c, &Event{Kind: EventUserList, Users: h.onlineLocked()})
		return nil
	}
	r := h.rooms.get(cmd.Room)
	if r == nil {
		return NewError(ErrCodeNotFound, "room %q not found", cmd.Room)
	}
	b.send(c, &Event{Kind: EventUserList, Room: r.Name, Users: r.Usernames()})
	return nil
}

func (h *Hub) getHistory(b *batch, c *Client, cmd *Command) *CoreError {
	name := cmd.Room
	if name == "" {
		name = c.room
	}
	r := h.rooms.get(name)
	if r == nil {
		return NewError(ErrCodeNotFound, "room %q not found", name)
	}
	if r.Private() && !r.Has(c) && !r.IsAdmin(c.Name) {
		return NewError(ErrCodePermissionDenied, "join room %q to read its history", name)
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = h.backlog
	}
	b.send(c, h.historyEvent(r.Name, limit))
	return nil
}

// adminRoomLocked resolves a room the caller must administer.
func (h *Hub) adminRoomLocked(c *Client, name, action string) (*Room, *CoreError) {
	if name == "" {
		name = c.room
	}
	r := h.rooms.get(name)
	if r == nil {
		return nil, NewError(ErrCodeNotFound, "room %q not found", name)
	}
	if r.Name == DefaultRoom {
		return nil, NewError(ErrCodePermissionDenied, "cannot %s the default room", action)
	}
	if !r.IsAdmin(c.Name) {
		return nil, NewError(ErrCodePermissionDenied, "only the creator of %q can %s it", r.Name, action)
	}
	return r, nil
}

func (h *Hub) kick(b *batch, c *Client, cmd *Command) *CoreError {
	r, err := h.adminRoomLocked(c, cmd.Room, "kick users from")
	if err != nil {
		return err
	}
	if cmd.Target == c.Name {
		return coreError(ErrCodeBadRequest, "cannot kick yourself")
	}
	target := h.byName[cmd.Target]
	if target == nil || !r.Has(target) {
		return NewError(ErrCodeNotInRoom, "user %q is not in room %q", cmd.Target, r.Name)
	}

	b.send(target, &Event{
		Kind: EventKicked,
		Room: r.Name,
		Text: fmt.Sprintf("You were kicked from room %q by %s", r.Name, c.Name),
	})
	h.moveLocked(b, target, h.rooms.lobby(), fmt.Sprintf("%s was kicked from the room by %s", target.Name, c.Name))
	h.broadcastRoomListLocked(b)

	h.log.Info().Str("room", r.Name).Str("admin", c.Name).Str("target", target.Name).Msg("user kicked")
	return nil
}

func (h *Hub) renameRoom(b *batch, c *Client, cmd *Command) *CoreError {
	r, err := h.adminRoomLocked(c, cmd.Room, "rename")
	if err != nil {
		return err
	}
	newName, err := normalizeRoomName(cmd.NewName)
	if err != nil {
		return err
	}
	if newName == r.Name {
		return NewError(ErrCodeRoomExists, "room is already named %q", newName)
	}

	oldName := r.Name
	if err := h.rooms.rename(r, newName); err != nil {
		return err
	}
	h.forgetHistoryLocked(newName)
	if histErr := h.history.Rename(context.Background(), oldName, newName); histErr != nil {
		h.log.Warn().Err(histErr).Str("room", oldName).Msg("history rename failed")
	}

	members := r.Clients()
	for _, m := range members {
		m.room = newName
		b.send(m, &Event{Kind: EventRoomJoined, Room: newName, Info: r.Info(), IsAdmin: r.IsAdmin(m.Name)})
	}
	h.noticeLocked(b, r, fmt.Sprintf("room %q was renamed to %q by %s", oldName, newName, c.Name))
	if !r.Has(c) {
		b.send(c, &Event{Kind: EventRoomMessage, Room: newName, Message: Message{
			Room: newName, From: SystemUser, Text: fmt.Sprintf("room %q renamed to %q", oldName, newName), CreatedAt: h.now(),
		}})
	}
	h.broadcastRoomListLocked(b)
	return nil
}

// forgetHistoryLocked drops entries left under a name no live room owned,
// such as those restored from a previous run.
func (h *Hub) forgetHistoryLocked(name string) {
	if err := h.history.Clear(context.Background(), name); err != nil {
		h.log.Warn().Err(err).Str("room", name).Msg("stale history clear failed")
	}
}

func (h *Hub) setPassword(b *batch, c *Client, cmd *Command) *CoreError {
	r, err := h.adminRoomLocked(c, cmd.Room, "change the password of")
	if err != nil {
		return err
	}
	r.password = cmd.Password

	text := fmt.Sprintf("password for room %q updated", r.Name)
	if cmd.Password == "" {
		text = fmt.Sprintf("room %q is now public", r.Name)
	}
	b.send(c, &Event{Kind: EventRoomMessage, Room: r.Name, Message: Message{
		Room: r.Name, From: SystemUser, Text: text, CreatedAt: h.now(),
	}})
	h.broadcastRoomListLocked(b)
	return nil
}

func (h *Hub) deleteRoom(b *batch, c *Client, cmd *Command) *CoreError {
	r, err := h.adminRoomLocked(c, cmd.Room, "delete")
	if err != nil {
		return err
	}

	lobby := h.rooms.lobby()
	wasMember := r.Has(c)
	for _, m := range r.Clients() {
		r.RemoveClient(m)
		m.room = ""
		b.send(m, &Event{
			Kind: EventKicked,
			Room: r.Name,
			Text: fmt.Sprintf("Room %q was deleted by %s", r.Name, c.Name),
		})
		h.moveLocked(b, m, lobby, "")
	}
	h.rooms.remove(r)
	if histErr := h.history.Clear(context.Background(), r.Name); histErr != nil {
		h.log.Warn().Err(histErr).Str("room", r.Name).Msg("history clear failed")
	}
	if !wasMember {
		b.send(c, &Event{Kind: EventRoomMessage, Room: c.room, Message: Message{
			Room: c.room, From: SystemUser, Text: fmt.Sprintf("room %q deleted", r.Name), CreatedAt: h.now(),
		}})
	}
	h.broadcastRoomListLocked(b)

	h.log.Info().Str("room", r.Name).Str("admin", c.Name).Msg("room deleted")
	return nil
}
