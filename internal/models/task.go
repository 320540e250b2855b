package models

import (
	"strings"
)

type Priority string

const (
	PriorityHigh Priority = "High"
	PriorityMid  Priority = "Mid"
	PriorityLow  Priority = "Low"
)

// Priorities lists the accepted priority values in display order.
var Priorities = []Priority{PriorityHigh, PriorityMid, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMid, PriorityLow:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "To Do"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusDone       TaskStatus = "Done"
)

// TaskStatuses lists the accepted status values in workflow order.
var TaskStatuses = []TaskStatus{TaskStatusToDo, TaskStatusInProgress, TaskStatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusToDo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

const (
	DefaultTaskStatus = TaskStatusToDo
	DefaultProgress   = 0
)

// Task is the only persisted entity. ID is assigned by the store.
type Task struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	DueDate  Date       `json:"due_date"`
	Tag      string     `json:"tag"`
	Priority Priority   `json:"priority"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// PriorityChoices is the human readable list used in validation messages.
func PriorityChoices() string { return joinValues(Priorities) }

// TaskStatusChoices is the human readable list used in validation messages.
func TaskStatusChoices() string { return joinValues(TaskStatuses) }
