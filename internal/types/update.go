package types

import "time"

// TaskUpdate is a partial update for a task. Nil fields are left
// unchanged. ClearDueDate distinguishes "set due date to NULL" from
// "leave as is".
type TaskUpdate struct {
	Title          *string
	Description    *string
	Status         *Status
	Priority       *Priority
	PriorityScore  *float64
	DueDate        *time.Time
	ClearDueDate   bool
	Assignee       *string
	EstimatedHours *float64
	ColumnID       *int64
	Position       *int
	Archived       *bool
}

// Empty reports whether the update would change nothing.
func (u *TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.PriorityScore == nil && u.DueDate == nil &&
		!u.ClearDueDate && u.Assignee == nil && u.EstimatedHours == nil &&
		u.ColumnID == nil && u.Position == nil && u.Archived == nil
}
