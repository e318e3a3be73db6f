package websocket

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/swecc-uw/swecc-sockets/internal/apperrors"
	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// member is a (user_id, username) pair held in a room's membership set.
type member struct {
	UserID   uint64
	Username string
}

// room is the mutable membership record for one room_id (§3).
type room struct {
	id      string
	members map[uint64]member
}

// RoomHandler covers both presence and chat semantics, since they share
// room state. rooms and userRooms are symmetric indices kept consistent
// under a single critical section (§3, §9).
type RoomHandler struct {
	registry *Registry

	mu        sync.Mutex
	rooms     map[string]*room
	userRooms map[uint64]map[string]struct{}
}

// NewRoomHandler builds a RoomHandler bound to registry for fan-out lookups.
func NewRoomHandler(registry *Registry) *RoomHandler {
	return &RoomHandler{
		registry:  registry,
		rooms:     make(map[string]*room),
		userRooms: make(map[uint64]map[string]struct{}),
	}
}

// Register wires the handler's three entry points onto emitter.
func (h *RoomHandler) Register(emitter *Emitter) {
	emitter.On(EventConnect, h.onConnect)
	emitter.On(EventMessage, h.onMessage)
	emitter.On(EventDisconnect, h.onDisconnect)
}

func (h *RoomHandler) onConnect(ctx context.Context, e Event) error {
	e.Conn.Send(Frame{
		Type:    TypeSystem,
		Message: "Room service: Connected as " + e.Username,
	})
	return nil
}

// onMessage dispatches on the frame's top-level type, reading room_id and
// content flat off the inbound frame (not a nested "data" object), matching
// the original's `event.data.get("room_id")` / `event.data.get("content")`
// access.
func (h *RoomHandler) onMessage(ctx context.Context, e Event) error {
	switch e.Data.Type {
	case "join_room":
		h.joinRoom(ctx, e.Conn, e.UserID, e.Username, e.Data.RoomID)
	case "leave_room":
		h.leaveRoom(ctx, e.Conn, e.UserID, e.Username, e.Data.RoomID)
	case "chat_message":
		h.chatMessage(ctx, e.Conn, e.UserID, e.Username, e.Data.RoomID, e.Data.Content)
	case "list_rooms":
		h.listRooms(e.Conn)
	case "get_room_users":
		h.getRoomUsers(e.Conn, e.Data.RoomID)
	default:
		e.Conn.Send(errorFrame("Unknown command. Available: join_room, leave_room, chat_message, list_rooms, get_room_users"))
	}
	return nil
}

func (h *RoomHandler) onDisconnect(ctx context.Context, e Event) error {
	h.mu.Lock()
	roomIDs := make([]string, 0, len(h.userRooms[e.UserID]))
	for id := range h.userRooms[e.UserID] {
		roomIDs = append(roomIDs, id)
	}
	h.mu.Unlock()

	for _, id := range roomIDs {
		h.leaveRoom(ctx, e.Conn, e.UserID, e.Username, id)
	}

	h.mu.Lock()
	delete(h.userRooms, e.UserID)
	h.mu.Unlock()
	return nil
}

func (h *RoomHandler) joinRoom(ctx context.Context, conn *Connection, userID uint64, username, roomID string) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[uint64]member)}
		h.rooms[roomID] = r
	}
	r.members[userID] = member{UserID: userID, Username: username}

	if h.userRooms[userID] == nil {
		h.userRooms[userID] = make(map[string]struct{})
	}
	h.userRooms[userID][roomID] = struct{}{}
	others := otherMemberIDs(r, userID)
	presence := presenceFrame(r)
	h.mu.Unlock()

	conn.Send(Frame{Type: TypeRoomJoined, RoomID: roomID})

	h.broadcastTo(ctx, others, Frame{
		Type:     TypeChatMessage,
		RoomID:   roomID,
		Username: "System",
		Message:  username + " has joined the room",
	})
	h.broadcastToRoom(ctx, r, presence)
}

func (h *RoomHandler) leaveRoom(ctx context.Context, conn *Connection, userID uint64, username, roomID string) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		conn.Send(Frame{Type: TypeRoomLeft, RoomID: roomID})
		return
	}

	delete(r.members, userID)
	if rooms := h.userRooms[userID]; rooms != nil {
		delete(rooms, roomID)
	}

	empty := len(r.members) == 0
	if empty {
		delete(h.rooms, roomID)
	}
	presence := presenceFrame(r)
	h.mu.Unlock()

	conn.Send(Frame{Type: TypeRoomLeft, RoomID: roomID})

	if !empty {
		h.broadcastToRoom(ctx, r, Frame{
			Type:     TypeChatMessage,
			RoomID:   roomID,
			Username: "System",
			Message:  username + " has left the room",
		})
		h.broadcastToRoom(ctx, r, presence)
	}
}

func (h *RoomHandler) chatMessage(ctx context.Context, conn *Connection, userID uint64, username, roomID, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	isMember := ok && roomHasMember(r, userID)
	h.mu.Unlock()

	if !ok || !isMember {
		semErr := apperrors.Semantic("chat_message from non-member")
		logger.Room().Debug().Err(semErr).Uint64("user_id", userID).Str("room_id", roomID).Msg("rejecting chat message")
		conn.Send(errorFrame("You are not a member of this room"))
		return
	}

	h.broadcastToRoom(ctx, r, Frame{
		Type:     TypeChatMessage,
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		Message:  content,
	})
}

func (h *RoomHandler) listRooms(conn *Connection) {
	h.mu.Lock()
	type roomSummary struct {
		ID        string `json:"id"`
		UserCount int    `json:"user_count"`
	}
	summaries := make([]roomSummary, 0, len(h.rooms))
	for id, r := range h.rooms {
		summaries = append(summaries, roomSummary{ID: id, UserCount: len(r.members)})
	}
	h.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

	conn.Send(Frame{
		Type: TypeRoomList,
		Data: map[string]interface{}{"rooms": summaries},
	})
}

func (h *RoomHandler) getRoomUsers(conn *Connection, roomID string) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	var users []member
	if ok {
		users = memberList(r)
	}
	h.mu.Unlock()

	if !ok {
		semErr := apperrors.Semantic("room not found")
		logger.Room().Debug().Err(semErr).Str("room_id", roomID).Msg("rejecting get_room_users")
		conn.Send(errorFrame("Room not found: " + roomID))
		return
	}

	conn.Send(Frame{
		Type:   TypeRoomUsers,
		RoomID: roomID,
		Data:   map[string]interface{}{"users": presenceUsers(users)},
	})
}

// broadcastToRoom resolves every member's connection via the Registry and
// sends concurrently, isolating per-socket failures (§4.6).
func (h *RoomHandler) broadcastToRoom(ctx context.Context, r *room, f Frame) {
	h.mu.Lock()
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	h.broadcastTo(ctx, ids, f)
}

func (h *RoomHandler) broadcastTo(ctx context.Context, userIDs []uint64, f Frame) {
	var wg sync.WaitGroup
	for _, id := range userIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := h.registry.Lookup(ServiceRoom, id)
			if conn == nil {
				return
			}
			if !conn.Send(f) {
				logger.Room().Warn().Uint64("user_id", id).Msg("evicting dead room socket")
				h.registry.Disconnect(ServiceRoom, id)
			}
		}()
	}
	wg.Wait()
}

func otherMemberIDs(r *room, exclude uint64) []uint64 {
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

func roomHasMember(r *room, userID uint64) bool {
	_, ok := r.members[userID]
	return ok
}

func memberList(r *room) []member {
	out := make([]member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

func presenceUsers(members []member) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]interface{}{"id": m.UserID, "username": m.Username})
	}
	return out
}

func presenceFrame(r *room) Frame {
	users := memberList(r)
	return Frame{
		Type:   TypePresenceUpdate,
		RoomID: r.id,
		Data: map[string]interface{}{
			"user_count": len(users),
			"users":      presenceUsers(users),
		},
	}
}
