package model

import "strings"

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleTeamMember     Role = "team_member"
)

var Roles = []Role{RoleAdmin, RoleProjectManager, RoleTeamMember}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

const (
	userRoomPrefix = "user:"
	roleRoomPrefix = "role:"
	taskRoomPrefix = "task:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }

func RoleRoom(role Role) string { return roleRoomPrefix + string(role) }

func TaskRoom(taskID string) string { return taskRoomPrefix + taskID }

// ReservedRoom reports whether a room is managed by the gateway and cannot be joined on request.
func ReservedRoom(room string) bool {
	return strings.HasPrefix(room, userRoomPrefix) || strings.HasPrefix(room, roleRoomPrefix)
}
