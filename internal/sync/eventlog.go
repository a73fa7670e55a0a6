package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the store.
const (
	TypeGradeCreated = "GradeCreated"
	TypeGradeAmended = "GradeAmended"
	TypeBadgeAwarded = "BadgeAwarded"
	TypeAlertRaised  = "AlertRaised"
	TypeAlertStatus  = "AlertStatusChanged"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// NewEvent marshals payload into an Event.
func NewEvent(typ, key string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", typ, err)
	}
	return Event{Type: typ, Key: key, DataJSON: string(b)}, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	Now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, Now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	return r.AppendTx(ctx, r.db, e)
}

// AppendTx appends e through x so the event commits with the caller's writes.
func (r *EventRepo) AppendTx(ctx context.Context, x Execer, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := x.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, r.Now().Unix())
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	return nil
}

// List returns events with seq greater than afterSeq, oldest first.
func (r *EventRepo) List(ctx context.Context, afterSeq int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at
		   FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
