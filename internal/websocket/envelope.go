package websocket

import "encoding/json"

// ServiceKind selects which Emitter and handler set a connection belongs to.
type ServiceKind string

const (
	ServiceEcho   ServiceKind = "echo"
	ServiceLogs   ServiceKind = "logs"
	ServiceRoom   ServiceKind = "room"
	ServiceResume ServiceKind = "resume"
)

// MessageType enumerates every frame type the gateway sends or accepts.
type MessageType string

const (
	TypeSystem         MessageType = "system"
	TypeError          MessageType = "error"
	TypeEcho           MessageType = "echo"
	TypeLogLine        MessageType = "log_line"
	TypeLogsStarted    MessageType = "logs_started"
	TypeLogsStopped    MessageType = "logs_stopped"
	TypeRoomJoined     MessageType = "room_joined"
	TypeRoomLeft       MessageType = "room_left"
	TypePresenceUpdate MessageType = "presence_update"
	TypeRoomList       MessageType = "room_list"
	TypeRoomUsers      MessageType = "room_users"
	TypeChatMessage    MessageType = "chat_message"
	TypeResumeReviewed MessageType = "resume_reviewed"
)

// Frame is the wire envelope exchanged in both directions (spec §3, §4.9).
// Unknown fields on ingress are ignored by encoding/json; on egress every
// field except the required `type` is `omitempty` so absent values
// disappear rather than serializing as null or zero.
type Frame struct {
	Type     MessageType `json:"type"`
	Message  string      `json:"message,omitempty"`
	UserID   uint64      `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	RoomID   string      `json:"room_id,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// InboundFrame is the shape of a client-sent frame. Command arguments
// (room_id, content, container_name) are read flat off the top-level
// object, matching the original handlers' `event.data.get("room_id")` /
// `event.data.get("container_name")` access (chat_handler.py,
// container_logs_handler.py): the client's parsed JSON message itself is
// the args bag, not a nested "data" sub-object. Unknown fields (including
// any nested "data") are ignored by encoding/json.
type InboundFrame struct {
	Type          string `json:"type"`
	Content       string `json:"content,omitempty"`
	RoomID        string `json:"room_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
}

// errorFrame builds a generic client-facing error frame (§4.4, §7).
func errorFrame(message string) Frame {
	return Frame{Type: TypeError, Message: message}
}

func marshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
