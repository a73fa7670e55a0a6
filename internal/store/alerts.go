package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/db"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

const alertColumns = `id, student_id, alert_type, priority, status, title, message, context_json,
	assigned_to, created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, dismissed_at`

// CreateIfNoLive serialises writers per (student, type). On postgres a
// transaction-scoped advisory lock covers the check-then-insert; sqlite runs a
// single connection so the transaction alone is enough.
func (s *Store) CreateIfNoLive(ctx context.Context, a alerts.Alert, ns []alerts.Notification, since int64) (alerts.Alert, bool, error) {
	ctxJSON, err := json.Marshal(a.Context)
	if err != nil {
		return alerts.Alert{}, false, fmt.Errorf("encode alert context: %w", err)
	}
	if a.Context == nil {
		ctxJSON = []byte("{}")
	}
	out := a
	created := false
	err = s.tx(ctx, func(tx *sql.Tx) error {
		if s.Driver == db.DriverPostgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
				a.StudentID+"|"+string(a.Type)); err != nil {
				return fmt.Errorf("alert lock: %w", err)
			}
		}
		live, err := scanAlert(tx.QueryRowContext(ctx, `
			SELECT `+alertColumns+` FROM academic_alerts
			 WHERE student_id=$1 AND alert_type=$2 AND status<>$3 AND created_at>=$4
			 ORDER BY created_at DESC LIMIT 1`,
			a.StudentID, string(a.Type), string(alerts.StatusDismissed), since))
		if err == nil {
			out = live
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO academic_alerts (id, student_id, alert_type, priority, status, title, message, context_json, assigned_to, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			a.ID, a.StudentID, string(a.Type), string(a.Priority), string(a.Status),
			a.Title, a.Message, string(ctxJSON), a.AssignedTo, a.CreatedAt); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		for _, n := range ns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO alert_notifications (id, alert_id, user_id, role, created_at)
				VALUES ($1,$2,$3,$4,$5)`,
				n.ID, n.AlertID, n.UserID, string(n.Role), n.CreatedAt); err != nil {
				return fmt.Errorf("insert notification for %s: %w", n.UserID, err)
			}
		}
		created = true
		return s.appendEvent(ctx, tx, syncx.TypeAlertRaised, a.ID, map[string]any{
			"alert_id": a.ID, "student_id": a.StudentID, "alert_type": a.Type,
			"priority": a.Priority, "assigned_to": a.AssignedTo, "recipients": len(ns),
		})
	})
	if err != nil {
		return alerts.Alert{}, false, err
	}
	return out, created, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (alerts.Alert, error) {
	a, err := scanAlert(s.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM academic_alerts WHERE id=$1`, id))
	if err != nil {
		return alerts.Alert{}, notFound(err, "alert", id)
	}
	return a, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, a alerts.Alert, from alerts.Status) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE academic_alerts
			   SET status=$3, acknowledged_at=$4, acknowledged_by=$5, resolved_at=$6, resolved_by=$7, dismissed_at=$8
			 WHERE id=$1 AND status=$2`,
			a.ID, string(from), string(a.Status),
			ptrInt64(a.AcknowledgedAt), nullString(a.AcknowledgedBy),
			ptrInt64(a.ResolvedAt), nullString(a.ResolvedBy), ptrInt64(a.DismissedAt))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var cur string
			if err := tx.QueryRowContext(ctx, `SELECT status FROM academic_alerts WHERE id=$1`, a.ID).Scan(&cur); err != nil {
				return notFound(err, "alert", a.ID)
			}
			return fmt.Errorf("alert %s is %s: %w", a.ID, cur, apperr.ErrInvalidTransition)
		}
		return s.appendEvent(ctx, tx, syncx.TypeAlertStatus, a.ID, map[string]any{
			"alert_id": a.ID, "from": from, "to": a.Status,
		})
	})
}

func (s *Store) ListAlerts(ctx context.Context, f alerts.Filter) ([]alerts.Alert, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.StudentID != "" {
		where = append(where, "student_id="+arg(f.StudentID))
	}
	var scope []string
	if len(f.StudentIDs) > 0 {
		start := len(args) + 1
		for _, id := range f.StudentIDs {
			args = append(args, id)
		}
		scope = append(scope, "student_id IN ("+placeholders(start, len(f.StudentIDs))+")")
	}
	if f.AssignedTo != "" {
		scope = append(scope, "assigned_to="+arg(f.AssignedTo))
	}
	if len(scope) > 0 {
		where = append(where, "("+strings.Join(scope, " OR ")+")")
	}
	if f.Status != "" {
		where = append(where, "status="+arg(string(f.Status)))
	}
	if f.Type != "" {
		where = append(where, "alert_type="+arg(string(f.Type)))
	}
	q := `SELECT ` + alertColumns + ` FROM academic_alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []alerts.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Candidates lists teachers first, then coordinators, then admins, each by id.
func (s *Store) Candidates(ctx context.Context, studentID string) ([]alerts.Recipient, error) {
	queries := []struct {
		role alerts.Role
		q    string
		args []any
	}{
		{alerts.RoleTeacher, `
			SELECT DISTINCT c.teacher_id FROM enrollments e JOIN courses c ON c.id = e.course_id
			 WHERE e.student_id=$1 AND c.teacher_id IS NOT NULL ORDER BY c.teacher_id`, []any{studentID}},
		{alerts.RoleCoordinator, `
			SELECT DISTINCT p.coordinator_id FROM enrollments e
			  JOIN courses c ON c.id = e.course_id JOIN programs p ON p.id = c.program_id
			 WHERE e.student_id=$1 AND p.coordinator_id IS NOT NULL ORDER BY p.coordinator_id`, []any{studentID}},
		{alerts.RoleAdmin, `SELECT id FROM users WHERE role=$1 ORDER BY id`, []any{string(alerts.RoleAdmin)}},
	}
	var out []alerts.Recipient
	for _, x := range queries {
		rows, err := s.DB.QueryContext(ctx, x.q, x.args...)
		if err != nil {
			return nil, fmt.Errorf("%s candidates: %w", x.role, err)
		}
		ids, err := scanStrings(rows)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out = append(out, alerts.Recipient{UserID: id, Role: x.role})
		}
	}
	return out, nil
}

func (s *Store) MarkDelivered(ctx context.Context, notificationID string, at int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alert_notifications SET delivered_at=$2 WHERE id=$1 AND delivered_at IS NULL`, notificationID, at)
	return err
}

// MarkRead is idempotent; a user without a notification for the alert gets ErrNotFound.
func (s *Store) MarkRead(ctx context.Context, alertID, userID string, at int64) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE alert_notifications SET read_at=$3 WHERE alert_id=$1 AND user_id=$2 AND read_at IS NULL`,
		alertID, userID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM alert_notifications WHERE alert_id=$1 AND user_id=$2`, alertID, userID).Scan(&one)
	return notFound(err, "notification", alertID+"/"+userID)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]alerts.Notification, error) {
	q := `SELECT id, alert_id, user_id, role, created_at, delivered_at, read_at
	        FROM alert_notifications WHERE user_id=$1`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC, id`
	rows, err := s.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []alerts.Notification{}
	for rows.Next() {
		var n alerts.Notification
		var role string
		var delivered, read sql.NullInt64
		if err := rows.Scan(&n.ID, &n.AlertID, &n.UserID, &role, &n.CreatedAt, &delivered, &read); err != nil {
			return nil, err
		}
		n.Role = alerts.Role(role)
		n.DeliveredAt, n.ReadAt = int64Ptr(delivered), int64Ptr(read)
		out = append(out, n)
	}
	return out, rows.Err()
}

// StudentAlertFacts reads the generator's inputs. An assignment is missed when
// it is published in an enrolled course, its due date has passed and the
// student has no submission.
func (s *Store) StudentAlertFacts(ctx context.Context, studentID string, now int64) (alerts.StudentFacts, error) {
	var f alerts.StudentFacts
	signals, err := s.ListRiskSignals(ctx, riskFilterFor(studentID))
	if err != nil {
		return f, err
	}
	if len(signals) == 0 {
		return f, apperr.NotFound("student", studentID)
	}
	f.Signals = signals[0]

	rows, err := s.DB.QueryContext(ctx, `
		SELECT a.id FROM assignments a JOIN enrollments e ON e.course_id = a.course_id
		 WHERE e.student_id=$1 AND a.published_at<=$2 AND a.due_at>0 AND a.due_at<$2
		   AND NOT EXISTS (SELECT 1 FROM student_submissions sub
		                    WHERE sub.assignment_id = a.id AND sub.student_id = e.student_id)
		 ORDER BY a.due_at, a.id`, studentID, now)
	if err != nil {
		return f, fmt.Errorf("missed assignments: %w", err)
	}
	f.MissedAssignments, err = scanStrings(rows)
	return f, err
}

func scanAlert(r rowScanner) (alerts.Alert, error) {
	var a alerts.Alert
	var typ, prio, status, ctxJSON string
	var ackAt, resAt, disAt sql.NullInt64
	var ackBy, resBy sql.NullString
	err := r.Scan(&a.ID, &a.StudentID, &typ, &prio, &status, &a.Title, &a.Message, &ctxJSON,
		&a.AssignedTo, &a.CreatedAt, &ackAt, &ackBy, &resAt, &resBy, &disAt)
	if err != nil {
		return alerts.Alert{}, err
	}
	a.Type, a.Priority, a.Status = alerts.Type(typ), alerts.Priority(prio), alerts.Status(status)
	if ctxJSON != "" && ctxJSON != "{}" {
		if err := json.Unmarshal([]byte(ctxJSON), &a.Context); err != nil {
			return alerts.Alert{}, fmt.Errorf("alert %s: decode context: %w", a.ID, err)
		}
	}
	a.AcknowledgedAt, a.ResolvedAt, a.DismissedAt = int64Ptr(ackAt), int64Ptr(resAt), int64Ptr(disAt)
	a.AcknowledgedBy, a.ResolvedBy = ackBy.String, resBy.String
	return a, nil
}
