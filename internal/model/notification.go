package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTaskAssigned      NotificationType = "task_assigned"
	NotificationTaskCreated       NotificationType = "task_created"
	NotificationTaskUpdated       NotificationType = "task_updated"
	NotificationTaskStatusChanged NotificationType = "task_status_changed"
	NotificationCommentAdded      NotificationType = "comment_added"
	NotificationMention           NotificationType = "mention"
	NotificationTaskDeleted       NotificationType = "task_deleted"
)

// NotificationContent is what gets delivered; it becomes a Notification once it has an id.
type NotificationContent struct {
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Data    JSONMap          `json:"data,omitempty"`
}

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      JSONMap          `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewNotification stamps content with a fresh id and timestamp.
func NewNotification(content NotificationContent, now time.Time) *Notification {
	return &Notification{
		ID:        NewNotificationID(now),
		Type:      content.Type,
		Title:     content.Title,
		Message:   content.Message,
		Data:      content.Data,
		Timestamp: now,
	}
}

// NewNotificationID returns "<unix millis>-<9 random hex chars>".
func NewNotificationID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// Content strips the identity fields.
func (n *Notification) Content() NotificationContent {
	return NotificationContent{
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		Data:    n.Data,
	}
}
