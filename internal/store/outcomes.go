package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/db"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

const outcomeColumns = `id, title, description, type, blooms_level, program_id, course_id,
	version, is_active, created_by, created_at, updated_at`

func (s *Store) CreateOutcome(ctx context.Context, o outcome.Outcome) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO learning_outcomes (`+outcomeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.Title, o.Description, string(o.Type), string(o.BloomsLevel),
		nullString(o.ProgramID), nullString(o.CourseID),
		o.Version, o.IsActive, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("outcome %s: %w", o.ID, apperr.ErrConflict)
	}
	return err
}

func (s *Store) GetOutcome(ctx context.Context, id string) (outcome.Outcome, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM learning_outcomes WHERE id=$1`, id)
	o, err := scanOutcome(row)
	if err != nil {
		return outcome.Outcome{}, notFound(err, "outcome", id)
	}
	return o, nil
}

func (s *Store) UpdateOutcome(ctx context.Context, o outcome.Outcome) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE learning_outcomes
		   SET title=$2, description=$3, blooms_level=$4, version=$5, is_active=$6, updated_at=$7
		 WHERE id=$1`,
		o.ID, o.Title, o.Description, string(o.BloomsLevel), o.Version, o.IsActive, o.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("outcome", o.ID)
	}
	return nil
}

func (s *Store) ListOutcomes(ctx context.Context, f outcome.ListFilter) ([]outcome.Outcome, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type=$%d", string(f.Type))
	}
	if f.ProgramID != "" {
		add("program_id=$%d", f.ProgramID)
	}
	if f.CourseID != "" {
		add("course_id=$%d", f.CourseID)
	}
	if f.ActiveOnly {
		add("is_active=$%d", true)
	}
	q := `SELECT ` + outcomeColumns + ` FROM learning_outcomes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []outcome.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListMappings(ctx context.Context) ([]outcome.Mapping, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT source_outcome_id, target_outcome_id, weight, created_by
		  FROM outcome_mappings ORDER BY target_outcome_id, source_outcome_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []outcome.Mapping
	for rows.Next() {
		var m outcome.Mapping
		if err := rows.Scan(&m.SourceID, &m.TargetID, &m.Weight, &m.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMapping keeps created_by of an existing edge and replaces its weight.
func (s *Store) UpsertMapping(ctx context.Context, m outcome.Mapping, now int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO outcome_mappings (source_outcome_id, target_outcome_id, weight, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (source_outcome_id, target_outcome_id)
		DO UPDATE SET weight=EXCLUDED.weight, updated_at=EXCLUDED.updated_at`,
		m.SourceID, m.TargetID, m.Weight, m.CreatedBy, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(r rowScanner) (outcome.Outcome, error) {
	var o outcome.Outcome
	var typ, blooms string
	var program, course sql.NullString
	err := r.Scan(&o.ID, &o.Title, &o.Description, &typ, &blooms, &program, &course,
		&o.Version, &o.IsActive, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return outcome.Outcome{}, err
	}
	o.Type = outcome.Type(typ)
	o.BloomsLevel = outcome.BloomsLevel(blooms)
	o.ProgramID, o.CourseID = program.String, course.String
	return o, nil
}
