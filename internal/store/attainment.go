package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-obe/internal/attainment"
)

// effectiveCriteria is the latest amendment's criteria, else the grade's own.
const effectiveCriteria = `COALESCE((SELECT ga.criteria_json FROM grade_amendments ga
	WHERE ga.grade_id = g.id ORDER BY ga.revision DESC LIMIT 1), g.criteria_json)`

const effectivePercent = `COALESCE((SELECT ga.score_percent FROM grade_amendments ga
	WHERE ga.grade_id = g.id ORDER BY ga.revision DESC LIMIT 1), g.score_percent)`

func (s *Store) ListGradedWork(ctx context.Context, f attainment.WorkFilter) ([]attainment.GradedWork, error) {
	var where []string
	var args []any
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		where = append(where, fmt.Sprintf("g.student_id=$%d", len(args)))
	}
	if len(f.CourseIDs) > 0 {
		where = append(where, "a.course_id IN ("+placeholders(len(args)+1, len(f.CourseIDs))+")")
		for _, c := range f.CourseIDs {
			args = append(args, c)
		}
	}
	q := `SELECT g.submission_id, g.student_id, g.assignment_id, a.course_id, ` + effectiveCriteria + `
	        FROM grades g JOIN assignments a ON a.id = g.assignment_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY g.graded_at, g.id`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attainment.GradedWork
	for rows.Next() {
		var w attainment.GradedWork
		var criteria string
		if err := rows.Scan(&w.SubmissionID, &w.StudentID, &w.AssignmentID, &w.CourseID, &criteria); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(criteria), &w.Criteria); err != nil {
			return nil, fmt.Errorf("submission %s: decode criteria: %w", w.SubmissionID, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) ListProgramCourses(ctx context.Context, programID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM courses WHERE program_id=$1 ORDER BY id`, programID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *Store) AssignmentOutcomes(ctx context.Context, assignmentID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT outcome_id FROM rubric_criteria WHERE assignment_id=$1 ORDER BY outcome_id`, assignmentID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *Store) SavePerformance(ctx context.Context, studentID string, rows []attainment.Performance, clear []string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, p := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO student_performance (student_id, outcome_id, average_score, total_submissions, last_updated)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (student_id, outcome_id) DO UPDATE SET
					average_score=EXCLUDED.average_score,
					total_submissions=EXCLUDED.total_submissions,
					last_updated=EXCLUDED.last_updated`,
				studentID, p.OutcomeID, p.AverageScore, p.TotalSubmissions, p.LastUpdated); err != nil {
				return fmt.Errorf("save performance %s: %w", p.OutcomeID, err)
			}
		}
		for _, id := range clear {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM student_performance WHERE student_id=$1 AND outcome_id=$2`, studentID, id); err != nil {
				return fmt.Errorf("clear performance %s: %w", id, err)
			}
		}
		return nil
	})
}

// ListPerformance returns the cached attainment rows of a student.
func (s *Store) ListPerformance(ctx context.Context, studentID string) ([]attainment.Performance, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT student_id, outcome_id, average_score, total_submissions, last_updated
		  FROM student_performance WHERE student_id=$1 ORDER BY outcome_id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attainment.Performance
	for rows.Next() {
		var p attainment.Performance
		if err := rows.Scan(&p.StudentID, &p.OutcomeID, &p.AverageScore, &p.TotalSubmissions, &p.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
