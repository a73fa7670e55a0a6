package notify

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-obe/internal/logger"
)

// Message is one alert notification addressed to one recipient.
type Message struct {
	NotificationID string `json:"notification_id"`
	AlertID        string `json:"alert_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	StudentID      string `json:"student_id"`
	AlertType      string `json:"alert_type"`
	Priority       string `json:"priority"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	CreatedAt      int64  `json:"created_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) error
}

type Func func(ctx context.Context, m Message) error

func (f Func) Dispatch(ctx context.Context, m Message) error { return f(ctx, m) }

// LogDispatcher writes notifications to the log. Used when no broker is configured.
type LogDispatcher struct {
	Log *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{Log: log.With("service", "LogDispatcher")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, m Message) error {
	d.Log.Info("alert notification",
		"alert_id", m.AlertID, "user_id", m.UserID, "role", m.Role,
		"alert_type", m.AlertType, "priority", m.Priority, "title", m.Title)
	return nil
}

// Multi sends to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
