package model

import "time"

// Server-to-client events.
const (
	EventNotification         = "notification"
	EventTaskUpdate           = "task:update"
	EventUserOnline           = "user:online"
	EventUserOffline          = "user:offline"
	EventOfflineNotifications = "notifications:offline"
	EventNotificationsCleared = "notifications:cleared"
	EventRoomJoined           = "room:joined"
	EventRoomLeft             = "room:left"
	EventTaskJoined           = "task:joined"
	EventTaskLeft             = "task:left"
	EventTaskUserTyping       = "task:user_typing"
	EventPresenceUpdate       = "user:presence_update"
	EventOnlineUsers          = "online_users"
	EventMessageReceived      = "message:received"
	EventMessageSent          = "message:sent"
	EventPong                 = "pong"
	EventError                = "error"
)

// Client-to-server events.
const (
	EventGetOfflineNotifications   = "get:offline_notifications"
	EventClearOfflineNotifications = "clear:offline_notifications"
	EventJoinRoom                  = "join:room"
	EventLeaveRoom                 = "leave:room"
	EventJoinTask                  = "join:task"
	EventLeaveTask                 = "leave:task"
	EventTaskTyping                = "task:typing"
	EventUserPresence              = "user:presence"
	EventGetOnlineUsers            = "get:online_users"
	EventDirectMessage             = "message:direct"
	EventTaskActivity              = "task:activity"
	EventPing                      = "ping"
)

// TaskUpdate is broadcast to every session for each consumed lifecycle event.
type TaskUpdate struct {
	EventType EventType    `json:"eventType"`
	Task      TaskSnapshot `json:"task"`
	UserID    string       `json:"userId"`
	Timestamp time.Time    `json:"timestamp"`
}

const DirectMessageText = "text"

type DirectMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
