package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities is the fixed priority enum, lowest first.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// Status is the completion state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Statuses is the fixed status enum.
var Statuses = []Status{StatusPending, StatusCompleted}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Toggle returns the opposite completion state.
func (s Status) Toggle() Status {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// Comment is one entry in a task discussion.
type Comment struct {
	ID        string    `json:"_id,omitempty"`
	Text      string    `json:"text"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is the unit of collaborative work.
type Task struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Assignees   []User     `json:"assignees"`
	Comments    []Comment  `json:"comments,omitempty"`
	CreatedBy   *User      `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so that no slice or pointer is shared with t.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.Assignees != nil {
		c.Assignees = make([]User, len(t.Assignees))
		copy(c.Assignees, t.Assignees)
	}
	if t.Comments != nil {
		c.Comments = make([]Comment, len(t.Comments))
		copy(c.Comments, t.Comments)
	}
	if t.CreatedBy != nil {
		u := *t.CreatedBy
		c.CreatedBy = &u
	}
	return c
}

// AssignedTo reports whether userID is among the task's assignees.
func (t Task) AssignedTo(userID string) bool {
	if userID == "" {
		return false
	}
	for _, a := range t.Assignees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// Apply returns the locally predicted state of t after patch. Assignee ids
// are resolved through lookup; ids it does not know become bare references.
func (t Task) Apply(patch TaskPatch, lookup func(id string) (User, bool)) Task {
	next := t.Clone()
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.DueDate != nil {
		if patch.DueDate.IsZero() {
			next.DueDate = nil
		} else {
			d := *patch.DueDate
			next.DueDate = &d
		}
	}
	if patch.Assignees != nil {
		next.Assignees = make([]User, 0, len(*patch.Assignees))
		for _, id := range *patch.Assignees {
			u := User{ID: id}
			if lookup != nil {
				if found, ok := lookup(id); ok {
					u = found
				}
			}
			next.Assignees = append(next.Assignees, u)
		}
	}
	return next
}

// TaskDraft is the body submitted to create a task. It never carries an id.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Assignees   []string   `json:"assignees"`
}

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
)

// Validate fills defaults (Medium, pending) and checks the enums.
func (d *TaskDraft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return ErrTitleRequired
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if !d.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !d.Status.Valid() {
		return ErrInvalidStatus
	}
	if d.Assignees == nil {
		d.Assignees = []string{}
	}
	return nil
}

// TaskPatch is a partial update. Nil fields are left untouched by the server.
// A zero DueDate clears the due date.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Assignees   *[]string  `json:"assignees,omitempty"`
}

// MarshalJSON sends a zero DueDate as an explicit null so the server drops
// the due date instead of storing the zero time.
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	type wire TaskPatch
	if p.DueDate == nil || !p.DueDate.IsZero() {
		return json.Marshal(wire(p))
	}
	return json.Marshal(struct {
		wire
		DueDate *time.Time `json:"dueDate"`
	}{wire: wire(p)})
}

// UnmarshalJSON reads a null or empty dueDate as a request to clear it.
func (p *TaskPatch) UnmarshalJSON(b []byte) error {
	type wire TaskPatch
	var w struct {
		wire
		DueDate json.RawMessage `json:"dueDate"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = TaskPatch(w.wire)
	p.DueDate = nil
	switch string(w.DueDate) {
	case "":
	case "null", `""`:
		p.DueDate = &time.Time{}
	default:
		var d time.Time
		if err := json.Unmarshal(w.DueDate, &d); err != nil {
			return fmt.Errorf("dueDate: %w", err)
		}
		p.DueDate = &d
	}
	return nil
}

// Validate checks the fields the patch sets.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Filters narrows a task fetch on the server. Empty fields mean no constraint.
type Filters struct {
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	Assignee string   `json:"assignee"`
}

// Query encodes f as URL query values, omitting empty fields.
func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.Assignee != "" {
		q.Set("assignee", f.Assignee)
	}
	return q
}

// Validate checks the enum fields that are set.
func (f Filters) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return ErrInvalidStatus
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}
