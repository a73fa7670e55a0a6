// Package store is the database/sql implementation of every domain Store.
// Queries use $n placeholders, which both the sqlite and pgx drivers accept.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/db"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

type Store struct {
	DB     *sql.DB
	Driver db.Driver
	Events *syncx.EventRepo
	Now    func() time.Time
}

func New(d *sql.DB, driver db.Driver, siteID string) *Store {
	return &Store{DB: d, Driver: driver, Events: syncx.NewEventRepo(d, siteID), Now: time.Now}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.WithTx(ctx, s.DB, fn)
}

func (s *Store) appendEvent(ctx context.Context, tx *sql.Tx, typ, key string, payload any) error {
	e, err := syncx.NewEvent(typ, key, payload)
	if err != nil {
		return err
	}
	return s.Events.AppendTx(ctx, tx, e)
}

// notFound maps sql.ErrNoRows to apperr.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(what, id)
	}
	return err
}

// placeholders renders "$start,...,$start+n-1".
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ptrInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
