package model

import "time"

type PresenceStatus string

const (
	PresenceOnline PresenceStatus = "online"
	PresenceAway   PresenceStatus = "away"
	PresenceBusy   PresenceStatus = "busy"
)

// Session is the presence record of a connected user. One record per user: the latest
// connection overwrites earlier ones.
type Session struct {
	UserID      string         `json:"userId"`
	SocketID    string         `json:"socketId"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	Role        Role           `json:"role,omitempty"`
	Status      PresenceStatus `json:"status,omitempty"`
	ConnectedAt time.Time      `json:"connectedAt"`
	LastSeen    time.Time      `json:"lastSeen"`
}
