package alerts

import (
	"github.com/mind-engage/mindengage-obe/internal/apperr"
)

type Type string

const (
	TypeLowPerformance Type = "low_performance"
	TypeInactivity     Type = "inactivity"
	TypeMissedDeadline Type = "missed_deadline"
	TypeHelpRequest    Type = "help_request"
	TypeAchievement    Type = "achievement"
	TypeStreakBreak    Type = "streak_break"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLowPerformance, TypeInactivity, TypeMissedDeadline, TypeHelpRequest, TypeAchievement, TypeStreakBreak:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged, StatusResolved, StatusDismissed},
	StatusAcknowledged: {StatusResolved, StatusDismissed},
}

// CanTransition reports whether from→to is allowed. Resolved and dismissed are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Alert struct {
	ID             string         `json:"id"`
	StudentID      string         `json:"student_id"`
	Type           Type           `json:"alert_type"`
	Priority       Priority       `json:"priority"`
	Status         Status         `json:"status"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Context        map[string]any `json:"context_data,omitempty"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	CreatedAt      int64          `json:"created_at"`
	AcknowledgedAt *int64         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	ResolvedAt     *int64         `json:"resolved_at,omitempty"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	DismissedAt    *int64         `json:"dismissed_at,omitempty"`
}

func (a Alert) validate() error {
	ve := apperr.Validation("invalid alert")
	if a.StudentID == "" {
		ve.WithField("student_id", "required")
	}
	if !a.Type.Valid() {
		ve.WithField("alert_type", "unknown alert type "+string(a.Type))
	}
	if !a.Priority.Valid() {
		ve.WithField("priority", "unknown priority "+string(a.Priority))
	}
	if a.Title == "" {
		ve.WithField("title", "required")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

type Notification struct {
	ID          string `json:"id"`
	AlertID     string `json:"alert_id"`
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	CreatedAt   int64  `json:"created_at"`
	DeliveredAt *int64 `json:"delivered_at,omitempty"`
	ReadAt      *int64 `json:"read_at,omitempty"`
}

// Filter selects alerts. Empty fields match everything; StudentIDs and
// AssignedTo are combined with OR when both are set.
type Filter struct {
	StudentID  string
	StudentIDs []string
	AssignedTo string
	Status     Status
	Type       Type
	Limit      int
}
