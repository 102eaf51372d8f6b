package resolver

import (
	"fmt"

	"github.com/jwalitptl/task-notifier/internal/model"
)

type AddressKind string

const (
	AddressUser AddressKind = "user"
	AddressRole AddressKind = "role"
)

// Address names a delivery room: a single user or every session of a role.
type Address struct {
	Kind AddressKind
	ID   string
}

func UserAddress(userID string) Address { return Address{Kind: AddressUser, ID: userID} }

func RoleAddress(role model.Role) Address { return Address{Kind: AddressRole, ID: string(role)} }

func (a Address) Room() string {
	if a.Kind == AddressRole {
		return model.RoleRoom(model.Role(a.ID))
	}
	return model.UserRoom(a.ID)
}

type Target struct {
	Address Address
	Content model.NotificationContent
	// ExceptUserID is skipped when a role room is addressed.
	ExceptUserID string
}

const (
	titleTaskAssigned  = "New Task Assigned"
	titleTaskCreated   = "New Task Created"
	titleTaskUpdated   = "Task Updated"
	titleStatusChanged = "Task Status Changed"
	titleCommentAdded  = "New Comment"
	titleMention       = "You Were Mentioned"
	titleTaskDeleted   = "Task Deleted"
)

// Resolve decides who hears about an event and what they are told. The actor is never
// a recipient and each user receives at most one notification per event. Unknown event
// types resolve to no targets.
func Resolve(evt *model.TaskLifecycleEvent) []Target {
	if evt == nil {
		return nil
	}

	r := &resolution{evt: evt, seen: make(map[string]bool)}
	task := evt.Task

	switch evt.EventType {
	case model.EventTaskCreated:
		if task.AssignedTo != nil {
			r.user(task.AssignedTo.UserID, model.NotificationTaskAssigned, titleTaskAssigned,
				fmt.Sprintf("You have been assigned a new task: %s", task.Title))
		}
		msg := fmt.Sprintf("Task '%s' has been created", task.Title)
		r.role(model.RoleProjectManager, model.NotificationTaskCreated, titleTaskCreated, msg)
		r.role(model.RoleAdmin, model.NotificationTaskCreated, titleTaskCreated, msg)

	case model.EventTaskUpdated:
		msg := fmt.Sprintf("Task '%s' has been updated", task.Title)
		r.watchers(model.NotificationTaskUpdated, titleTaskUpdated, msg)
		r.assignee(model.NotificationTaskUpdated, titleTaskUpdated, msg)

	case model.EventTaskStatusChanged:
		msg := fmt.Sprintf("Task '%s' status changed to %s", task.Title, task.Status)
		r.watchers(model.NotificationTaskStatusChanged, titleStatusChanged, msg)
		if task.CreatedBy != nil {
			r.user(task.CreatedBy.UserID, model.NotificationTaskStatusChanged, titleStatusChanged, msg)
		}
		r.assignee(model.NotificationTaskStatusChanged, titleStatusChanged, msg)

	case model.EventTaskCommentAdded:
		// mentions first so a mentioned watcher gets the mention variant only
		if task.NewComment != nil {
			for _, m := range task.NewComment.Mentions {
				r.user(m.UserID, model.NotificationMention, titleMention,
					fmt.Sprintf("You were mentioned in a comment on task '%s'", task.Title))
			}
		}
		r.watchers(model.NotificationCommentAdded, titleCommentAdded,
			fmt.Sprintf("New comment on task '%s'", task.Title))

	case model.EventTaskDeleted:
		msg := fmt.Sprintf("Task '%s' has been deleted", task.Title)
		r.watchers(model.NotificationTaskDeleted, titleTaskDeleted, msg)
		r.assignee(model.NotificationTaskDeleted, titleTaskDeleted, msg)
	}

	return r.targets
}

type resolution struct {
	evt     *model.TaskLifecycleEvent
	seen    map[string]bool
	targets []Target
}

func (r *resolution) user(userID string, typ model.NotificationType, title, message string) {
	if userID == "" || userID == r.evt.UserID || r.seen[userID] {
		return
	}
	r.seen[userID] = true
	r.targets = append(r.targets, Target{
		Address: UserAddress(userID),
		Content: r.content(typ, title, message),
	})
}

func (r *resolution) role(role model.Role, typ model.NotificationType, title, message string) {
	r.targets = append(r.targets, Target{
		Address:      RoleAddress(role),
		Content:      r.content(typ, title, message),
		ExceptUserID: r.evt.UserID,
	})
}

func (r *resolution) watchers(typ model.NotificationType, title, message string) {
	for _, w := range r.evt.Task.Watchers {
		r.user(w.UserID, typ, title, message)
	}
}

func (r *resolution) assignee(typ model.NotificationType, title, message string) {
	if a := r.evt.Task.AssignedTo; a != nil {
		r.user(a.UserID, typ, title, message)
	}
}

func (r *resolution) content(typ model.NotificationType, title, message string) model.NotificationContent {
	data := model.JSONMap{
		"taskId":    r.evt.Task.ID,
		"taskTitle": r.evt.Task.Title,
		"eventType": string(r.evt.EventType),
		"actorId":   r.evt.UserID,
	}
	if r.evt.Task.Status != "" {
		data["status"] = r.evt.Task.Status
	}
	if typ == model.NotificationMention || typ == model.NotificationCommentAdded {
		if c := r.evt.Task.NewComment; c != nil {
			data["comment"] = c.Content
		}
	}
	return model.NotificationContent{
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	}
}
