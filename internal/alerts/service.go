package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/notify"
)

const DefaultDedupWindow = 24 * time.Hour

type Store interface {
	// CreateIfNoLive inserts a and its notifications unless a non-dismissed
	// alert of the same (student, type) was created at or after since. The
	// check and insert are atomic. When skipped the live alert is returned
	// with created=false.
	CreateIfNoLive(ctx context.Context, a Alert, ns []Notification, since int64) (alert Alert, created bool, err error)
	GetAlert(ctx context.Context, id string) (Alert, error)
	// UpdateAlertStatus persists a's status fields if the stored status is
	// still from; otherwise apperr.ErrInvalidTransition.
	UpdateAlertStatus(ctx context.Context, a Alert, from Status) error
	ListAlerts(ctx context.Context, f Filter) ([]Alert, error)
	// Candidates returns teachers of the student's courses, coordinators of
	// the student's programs and every admin.
	Candidates(ctx context.Context, studentID string) ([]Recipient, error)
	MarkDelivered(ctx context.Context, notificationID string, at int64) error
	MarkRead(ctx context.Context, alertID, userID string, at int64) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
}

type Service struct {
	Store       Store
	Dispatcher  notify.Dispatcher
	DedupWindow time.Duration
	Log         *logger.Logger
	Now         func() time.Time
	NewID       func() string
}

func NewService(st Store, d notify.Dispatcher, window time.Duration, log *logger.Logger) *Service {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Service{
		Store:       st,
		Dispatcher:  d,
		DedupWindow: window,
		Log:         log.With("service", "AlertService"),
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Raise creates an alert unless a live one of the same (student, type) exists
// inside the dedup window. A skipped duplicate is not an error. Notifications
// are fanned out to the routed recipients and dispatched; dispatch failures
// are logged only.
func (s *Service) Raise(ctx context.Context, a Alert) (Alert, bool, error) {
	if err := a.validate(); err != nil {
		return Alert{}, false, err
	}
	candidates, err := s.Store.Candidates(ctx, a.StudentID)
	if err != nil {
		return Alert{}, false, fmt.Errorf("alert recipients: %w", err)
	}
	now := s.Now()
	routed := Route(a.Type, a.Priority)
	a.ID = s.NewID()
	a.Status = StatusActive
	a.CreatedAt = now.Unix()
	if a.AssignedTo == "" {
		a.AssignedTo = AssignOwner(a.Priority, routed, candidates)
	}

	recips := Recipients(a.StudentID, routed, candidates)
	ns := make([]Notification, 0, len(recips))
	for _, r := range recips {
		ns = append(ns, Notification{ID: s.NewID(), AlertID: a.ID, UserID: r.UserID, Role: r.Role, CreatedAt: a.CreatedAt})
	}

	since := now.Add(-s.DedupWindow).Unix()
	stored, created, err := s.Store.CreateIfNoLive(ctx, a, ns, since)
	if err != nil {
		return Alert{}, false, err
	}
	if !created {
		s.Log.Debug("duplicate alert skipped", "student_id", a.StudentID, "alert_type", a.Type, "live_alert", stored.ID)
		return stored, false, nil
	}
	s.Log.Info("alert raised", "alert_id", stored.ID, "student_id", stored.StudentID,
		"alert_type", stored.Type, "priority", stored.Priority, "recipients", len(ns))
	s.dispatch(ctx, stored, ns)
	return stored, true, nil
}

func (s *Service) dispatch(ctx context.Context, a Alert, ns []Notification) {
	if s.Dispatcher == nil {
		return
	}
	for _, n := range ns {
		msg := notify.Message{
			NotificationID: n.ID, AlertID: a.ID, UserID: n.UserID, Role: string(n.Role),
			StudentID: a.StudentID, AlertType: string(a.Type), Priority: string(a.Priority),
			Title: a.Title, Message: a.Message, CreatedAt: a.CreatedAt,
		}
		if err := s.Dispatcher.Dispatch(ctx, msg); err != nil {
			s.Log.Warn("notification dispatch failed", "alert_id", a.ID, "user_id", n.UserID, "error", err)
			continue
		}
		if err := s.Store.MarkDelivered(ctx, n.ID, s.Now().Unix()); err != nil {
			s.Log.Warn("mark delivered failed", "notification_id", n.ID, "error", err)
		}
	}
}

func (s *Service) Acknowledge(ctx context.Context, id, by string) (Alert, error) {
	return s.transition(ctx, id, StatusAcknowledged, by)
}

func (s *Service) Resolve(ctx context.Context, id, by string) (Alert, error) {
	return s.transition(ctx, id, StatusResolved, by)
}

func (s *Service) Dismiss(ctx context.Context, id, by string) (Alert, error) {
	return s.transition(ctx, id, StatusDismissed, by)
}

func (s *Service) transition(ctx context.Context, id string, to Status, by string) (Alert, error) {
	a, err := s.Store.GetAlert(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	from := a.Status
	if !CanTransition(from, to) {
		return Alert{}, fmt.Errorf("alert %s %s→%s: %w", id, from, to, apperr.ErrInvalidTransition)
	}
	now := s.Now().Unix()
	a.Status = to
	switch to {
	case StatusAcknowledged:
		a.AcknowledgedAt, a.AcknowledgedBy = &now, by
	case StatusResolved:
		a.ResolvedAt, a.ResolvedBy = &now, by
	case StatusDismissed:
		a.DismissedAt = &now
	}
	if err := s.Store.UpdateAlertStatus(ctx, a, from); err != nil {
		return Alert{}, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Alert, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, apperr.Validation("unknown alert type %q", f.Type)
	}
	return s.Store.ListAlerts(ctx, f)
}

func (s *Service) MarkRead(ctx context.Context, alertID, userID string) error {
	return s.Store.MarkRead(ctx, alertID, userID, s.Now().Unix())
}

func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return s.Store.ListNotifications(ctx, userID, unreadOnly)
}

// ResolveLive resolves every active or acknowledged alert of the type for the student.
func (s *Service) ResolveLive(ctx context.Context, studentID string, t Type, by string) (int, error) {
	live, err := s.Store.ListAlerts(ctx, Filter{StudentID: studentID, Type: t})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range live {
		if a.Status != StatusActive && a.Status != StatusAcknowledged {
			continue
		}
		if _, err := s.transition(ctx, a.ID, StatusResolved, by); err != nil {
			s.Log.Warn("auto-resolve failed", "alert_id", a.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
