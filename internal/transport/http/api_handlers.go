package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/session"
)

// HistoryAdmin is the slice of the history log the operator API needs.
type HistoryAdmin interface {
	Recent(room string, limit int) []history.Entry
	Clear(ctx context.Context, room string) error
}

// APIHandlers serves the read-only directory and operator endpoints.
type APIHandlers struct {
	hub     *core.Hub
	history HistoryAdmin
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, hist HistoryAdmin, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{hub: hub, history: hist, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomsResponse lists rooms.
type RoomsResponse struct {
	Rooms []proto.RoomSummary `json:"rooms"`
}

// UsersResponse lists online users, or the members of Room.
type UsersResponse struct {
	Room  string   `json:"room,omitempty"`
	Users []string `json:"users"`
}

// HistoryResponse lists recent lines of a room.
type HistoryResponse struct {
	Room    string              `json:"room"`
	History []proto.HistoryItem `json:"history"`
}

// ListRooms returns the room directory.
// GET /api/rooms
func (h *APIHandlers) ListRooms(c *gin.Context) {
	infos := h.hub.Rooms()
	rooms := make([]proto.RoomSummary, 0, len(infos))
	for _, r := range infos {
		rooms = append(rooms, session.RoomSummary(r))
	}
	c.JSON(http.StatusOK, RoomsResponse{Rooms: rooms})
}

// ListUsers returns online users, or a room's members with ?room=.
// GET /api/users
func (h *APIHandlers) ListUsers(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusOK, UsersResponse{Users: h.hub.Online()})
		return
	}

	users, err := h.hub.Members(room)
	if err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) && ce.Code == core.ErrCodeNotFound {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: ce.Message})
			return
		}
		h.log.Error().Err(err).Str("room", room).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, UsersResponse{Room: room, Users: users})
}

// GetHistory returns the last ?limit= lines of ?room=.
// GET /api/admin/history
func (h *APIHandlers) GetHistory(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room is required"})
		return
	}
	limit := core.DefaultBacklog
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	entries := h.history.Recent(room, limit)
	items := make([]proto.HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, proto.HistoryItem{
			Timestamp: e.CreatedAt.Format(proto.HistoryTimeLayout),
			Username:  e.Author,
			Message:   e.Text,
		})
	}
	c.JSON(http.StatusOK, HistoryResponse{Room: room, History: items})
}

// ClearHistory drops the history of ?room=, or of every room without it.
// DELETE /api/admin/history
func (h *APIHandlers) ClearHistory(c *gin.Context) {
	room := c.Query("room")
	if err := h.history.Clear(c.Request.Context(), room); err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to clear history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().
		Str("room", room).
		Str("operator", c.GetString(ContextKeyOperator)).
		Msg("history cleared")
	c.Status(http.StatusNoContent)
}
