package session

import (
	"time"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// inboundToCommand maps an authenticated client's frame to a hub command.
// auth and bye are handled by the caller.
func inboundToCommand(in *proto.Inbound) (*core.Command, *core.CoreError) {
	switch in.Type {
	case proto.InboundTypeChat:
		return &core.Command{Kind: core.CommandChat, Room: in.Room, Text: in.Message}, nil
	case proto.InboundTypePrivate:
		return &core.Command{Kind: core.CommandPrivate, Target: in.To, Text: in.Message}, nil
	case proto.InboundTypeImage:
		return &core.Command{
			Kind: core.CommandImage,
			Room: in.Room,
			Image: &core.Attachment{
				Filename: in.Filename,
				Data:     in.Data,
				Caption:  in.Caption,
			},
		}, nil
	case proto.InboundTypeCreateRoom:
		return &core.Command{Kind: core.CommandCreateRoom, Room: in.Room, Password: in.Password}, nil
	case proto.InboundTypeJoinRoom:
		return &core.Command{Kind: core.CommandJoinRoom, Room: in.Room, Password: in.Password}, nil
	case proto.InboundTypeLeaveRoom:
		return &core.Command{Kind: core.CommandLeaveRoom}, nil
	case proto.InboundTypeListUsers:
		return &core.Command{Kind: core.CommandListUsers, Room: in.Room}, nil
	case proto.InboundTypeListRooms:
		return &core.Command{Kind: core.CommandListRooms}, nil
	case proto.InboundTypeGetHistory:
		return &core.Command{Kind: core.CommandHistory, Room: in.Room, Limit: in.Limit}, nil
	case proto.InboundTypeKick:
		if in.Target == "" {
			return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "target is required"}
		}
		return &core.Command{Kind: core.CommandKick, Room: in.Room, Target: in.Target}, nil
	case proto.InboundTypeRenameRoom:
		return &core.Command{Kind: core.CommandRenameRoom, Room: in.Room, NewName: in.NewName}, nil
	case proto.InboundTypeChangePassword:
		return &core.Command{Kind: core.CommandSetPassword, Room: in.Room, Password: in.NewPassword}, nil
	case proto.InboundTypeDeleteRoom:
		return &core.Command{Kind: core.CommandDeleteRoom, Room: in.Room}, nil
	case proto.InboundTypeAuth:
		return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "already authenticated"}
	default:
		return nil, core.NewError(core.ErrCodeUnknownType, "unknown message type %q", in.Type)
	}
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventAuthOK:
		return proto.AuthOK{Type: proto.OutboundTypeAuthOK, Username: event.User}
	case core.EventRoomMessage:
		return proto.Chat{
			Type:      proto.OutboundTypeChat,
			Sender:    event.Message.From,
			Room:      event.Message.Room,
			Message:   event.Message.Text,
			Timestamp: liveTime(event.Message.CreatedAt),
		}
	case core.EventPrivateMessage:
		return proto.Private{
			Type:      proto.OutboundTypePrivate,
			Sender:    event.Message.From,
			Recipient: event.Message.To,
			Message:   event.Message.Text,
			Timestamp: liveTime(event.Message.CreatedAt),
		}
	case core.EventImage:
		out := proto.Image{
			Type:      proto.OutboundTypeImage,
			Sender:    event.Message.From,
			Room:      event.Message.Room,
			Timestamp: liveTime(event.Message.CreatedAt),
		}
		if img := event.Message.Image; img != nil {
			out.Filename = img.Filename
			out.Data = img.Data
			out.Caption = img.Caption
		}
		return out
	case core.EventUserList:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return proto.UserList{Type: proto.OutboundTypeUserList, Room: event.Room, Users: users}
	case core.EventRoomList:
		rooms := make([]proto.RoomSummary, 0, len(event.Rooms))
		for _, r := range event.Rooms {
			rooms = append(rooms, RoomSummary(r))
		}
		return proto.RoomList{Type: proto.OutboundTypeRoomList, Rooms: rooms}
	case core.EventRoomJoined:
		return proto.RoomJoined{
			Type:    proto.OutboundTypeRoomJoined,
			Room:    event.Room,
			Creator: event.Info.Creator,
			IsAdmin: event.IsAdmin,
		}
	case core.EventHistory:
		items := make([]proto.HistoryItem, 0, len(event.Messages))
		for _, msg := range event.Messages {
			items = append(items, proto.HistoryItem{
				Timestamp: msg.CreatedAt.Format(proto.HistoryTimeLayout),
				Username:  msg.From,
				Message:   msg.Text,
			})
		}
		return proto.History{Type: proto.OutboundTypeHistory, Room: event.Room, History: items}
	case core.EventKicked:
		return proto.AdminKicked{Type: proto.OutboundTypeAdminKicked, Room: event.Room, Message: event.Text}
	case core.EventError:
		if event.Error == nil {
			return errorFrame(core.ErrCodeInternal, "unknown error")
		}
		return errorFrame(event.Error.Code, event.Error.Message)
	default:
		return errorFrame(core.ErrCodeInternal, "unsupported event")
	}
}

// RoomSummary converts a room description to its wire form.
func RoomSummary(r core.RoomInfo) proto.RoomSummary {
	return proto.RoomSummary{
		Name:        r.Name,
		Creator:     r.Creator,
		IsPrivate:   r.Private,
		MemberCount: r.Members,
	}
}

func errorFrame(code, msg string) proto.Error {
	return proto.Error{Type: proto.OutboundTypeError, Code: code, Message: msg}
}

func liveTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(proto.LiveTimeLayout)
}
