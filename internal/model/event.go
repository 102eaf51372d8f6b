package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventTaskCreated       EventType = "created"
	EventTaskUpdated       EventType = "updated"
	EventTaskStatusChanged EventType = "status_changed"
	EventTaskCommentAdded  EventType = "comment_added"
	EventTaskDeleted       EventType = "deleted"
)

// RoutingKeyPrefix prefixes every lifecycle routing key, e.g. "task.created".
const RoutingKeyPrefix = "task."

// EventTypes lists every lifecycle event the notifier subscribes to.
var EventTypes = []EventType{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskStatusChanged,
	EventTaskCommentAdded,
	EventTaskDeleted,
}

func (t EventType) Known() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RoutingKey returns the broker routing key for the event type.
func (t EventType) RoutingKey() string {
	return RoutingKeyPrefix + string(t)
}

// EventTypeFromRoutingKey strips the "task." prefix from a routing key.
func EventTypeFromRoutingKey(key string) EventType {
	return EventType(strings.TrimPrefix(key, RoutingKeyPrefix))
}

// RoutingKeys returns the routing keys of every known lifecycle event.
func RoutingKeys() []string {
	keys := make([]string, 0, len(EventTypes))
	for _, t := range EventTypes {
		keys = append(keys, t.RoutingKey())
	}
	return keys
}

type UserRef struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

type Comment struct {
	Content  string    `json:"content"`
	Mentions []UserRef `json:"mentions,omitempty"`
}

// TaskSnapshot is the denormalized task state published with a lifecycle event.
type TaskSnapshot struct {
	ID         string    `json:"_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status,omitempty"`
	AssignedTo *UserRef  `json:"assignedTo,omitempty"`
	CreatedBy  *UserRef  `json:"createdBy,omitempty"`
	Watchers   []UserRef `json:"watchers,omitempty"`
	NewComment *Comment  `json:"newComment,omitempty"`
}

// UnmarshalJSON accepts "id" when the publisher does not use "_id".
func (s *TaskSnapshot) UnmarshalJSON(data []byte) error {
	type snapshot TaskSnapshot
	aux := struct {
		*snapshot
		AltID string `json:"id"`
	}{snapshot: (*snapshot)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = aux.AltID
	}
	return nil
}

type TaskLifecycleEvent struct {
	EventType EventType    `json:"eventType"`
	Task      TaskSnapshot `json:"task"`
	UserID    string       `json:"userId"`
	Timestamp time.Time    `json:"timestamp"`
}

// DecodeEvent parses a broker payload. The routing key fills in a missing event type.
func DecodeEvent(routingKey string, body []byte) (*TaskLifecycleEvent, error) {
	var evt TaskLifecycleEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode lifecycle event: %w", err)
	}
	if evt.EventType == "" && routingKey != "" {
		evt.EventType = EventTypeFromRoutingKey(routingKey)
	}
	if evt.EventType == "" {
		return nil, fmt.Errorf("lifecycle event has no event type")
	}
	if evt.Task.ID == "" {
		return nil, fmt.Errorf("lifecycle event %s has no task id", evt.EventType)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return &evt, nil
}
