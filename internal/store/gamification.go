package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/gamification"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

func (s *Store) LoadFacts(ctx context.Context, studentID string) (gamification.Facts, error) {
	f := gamification.Facts{StudentID: studentID, CourseCLOs: map[string]map[string]*float64{}}
	p, err := getProgress(ctx, s.DB, studentID)
	if err != nil {
		return f, err
	}
	f.Progress = p

	rows, err := s.DB.QueryContext(ctx, `
		SELECT sub.submitted_at, a.published_at
		  FROM student_submissions sub JOIN assignments a ON a.id = sub.assignment_id
		 WHERE sub.student_id=$1 ORDER BY sub.submitted_at`, studentID)
	if err != nil {
		return f, fmt.Errorf("submissions: %w", err)
	}
	for rows.Next() {
		var sf gamification.SubmissionFact
		if err := rows.Scan(&sf.SubmittedAt, &sf.PublishedAt); err != nil {
			rows.Close()
			return f, err
		}
		f.Submissions = append(f.Submissions, sf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return f, err
	}

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grades g WHERE g.student_id=$1 AND `+effectivePercent+` = 100`, studentID).
		Scan(&f.PerfectScores); err != nil {
		return f, fmt.Errorf("perfect scores: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_entries WHERE student_id=$1`, studentID).Scan(&f.JournalEntries); err != nil {
		return f, fmt.Errorf("journal entries: %w", err)
	}

	rows, err = s.DB.QueryContext(ctx, `
		SELECT e.course_id, lo.id, sp.average_score
		  FROM enrollments e
		  LEFT JOIN learning_outcomes lo
		         ON lo.course_id = e.course_id AND lo.type = 'CLO' AND lo.is_active = $2
		  LEFT JOIN student_performance sp
		         ON sp.student_id = e.student_id AND sp.outcome_id = lo.id
		 WHERE e.student_id=$1`, studentID, true)
	if err != nil {
		return f, fmt.Errorf("course outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var course string
		var clo sql.NullString
		var avg sql.NullFloat64
		if err := rows.Scan(&course, &clo, &avg); err != nil {
			return f, err
		}
		m := f.CourseCLOs[course]
		if m == nil {
			m = map[string]*float64{}
			f.CourseCLOs[course] = m
		}
		if !clo.Valid {
			continue
		}
		if avg.Valid {
			v := avg.Float64
			m[clo.String] = &v
		} else {
			m[clo.String] = nil
		}
	}
	return f, rows.Err()
}

func (s *Store) ListAwards(ctx context.Context, studentID string) ([]gamification.Award, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT sb.badge_template_id, COALESCE(bt.name, ''), sb.awarded_at
		  FROM student_badges sb LEFT JOIN badge_templates bt ON bt.id = sb.badge_template_id
		 WHERE sb.student_id=$1 ORDER BY sb.awarded_at, sb.badge_template_id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []gamification.Award{}
	for rows.Next() {
		var a gamification.Award
		if err := rows.Scan(&a.BadgeID, &a.Name, &a.AwardedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AwardBadge relies on UNIQUE(student_id, badge_template_id): the XP credit runs
// only when this call inserted the row, in the same transaction.
func (s *Store) AwardBadge(ctx context.Context, studentID, badgeID string, xp int, at int64) (bool, error) {
	created := false
	err := s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO student_badges (id, student_id, badge_template_id, awarded_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (student_id, badge_template_id) DO NOTHING`,
			uuid.NewString(), studentID, badgeID, at)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		created = true
		if err := addProgress(ctx, tx, studentID, xp, 1, at); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, syncx.TypeBadgeAwarded, studentID+"/"+badgeID, map[string]any{
			"student_id": studentID, "badge_id": badgeID, "xp": xp,
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) GetProgress(ctx context.Context, studentID string) (gamification.Progress, error) {
	return getProgress(ctx, s.DB, studentID)
}

// SaveStreak writes the streak fields only; XP and badge totals are owned by
// AwardBadge and AddXP.
func (s *Store) SaveStreak(ctx context.Context, p gamification.Progress) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO student_progress (student_id, xp, level, current_streak, longest_streak, last_activity_date, total_badges, updated_at)
		VALUES ($1, 0, 1, $2, $3, $4, 0, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			current_streak=EXCLUDED.current_streak,
			longest_streak=EXCLUDED.longest_streak,
			last_activity_date=EXCLUDED.last_activity_date,
			updated_at=EXCLUDED.updated_at`,
		p.StudentID, p.CurrentStreak, p.LongestStreak, p.LastActivityDate, p.UpdatedAt)
	return err
}

func (s *Store) AddXP(ctx context.Context, studentID string, xp int, at int64) (gamification.Progress, error) {
	var p gamification.Progress
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if err := addProgress(ctx, tx, studentID, xp, 0, at); err != nil {
			return err
		}
		var err error
		p, err = getProgress(ctx, tx, studentID)
		return err
	})
	return p, err
}

func (s *Store) AddJournalEntry(ctx context.Context, e gamification.JournalEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO journal_entries (id, student_id, body, created_at) VALUES ($1,$2,$3,$4)`,
		e.ID, e.StudentID, e.Body, e.CreatedAt)
	return err
}

func (s *Store) EnsureTemplates(ctx context.Context, ts []gamification.Template) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, t := range ts {
			req, err := json.Marshal(t.Requirement)
			if err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO badge_templates (id, name, description, category, requirements_json, xp_reward, is_active)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (id) DO UPDATE SET
					name=EXCLUDED.name,
					description=EXCLUDED.description,
					category=EXCLUDED.category,
					requirements_json=EXCLUDED.requirements_json,
					xp_reward=EXCLUDED.xp_reward`,
				t.ID, t.Name, t.Description, t.Category, string(req), t.XPReward, true); err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func addProgress(ctx context.Context, q querier, studentID string, xp, badges int, at int64) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO student_progress (student_id, xp, level, total_badges, updated_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (student_id) DO UPDATE SET
			xp=student_progress.xp + EXCLUDED.xp,
			total_badges=student_progress.total_badges + EXCLUDED.total_badges,
			updated_at=EXCLUDED.updated_at`,
		studentID, xp, badges, at); err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	_, err := q.ExecContext(ctx,
		`UPDATE student_progress SET level = 1 + xp / $2 WHERE student_id=$1`,
		studentID, gamification.XPPerLevel)
	return err
}

// getProgress returns a zero Progress at level 1 when the student has no row.
func getProgress(ctx context.Context, q querier, studentID string) (gamification.Progress, error) {
	p := gamification.Progress{StudentID: studentID, Level: 1}
	err := q.QueryRowContext(ctx, `
		SELECT xp, level, current_streak, longest_streak, last_activity_date, total_badges, updated_at
		  FROM student_progress WHERE student_id=$1`, studentID).
		Scan(&p.XP, &p.Level, &p.CurrentStreak, &p.LongestStreak, &p.LastActivityDate, &p.TotalBadges, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, nil
	}
	return p, err
}
