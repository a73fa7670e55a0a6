package store

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-obe/internal/risk"
)

func riskFilterFor(studentID string) risk.Filter {
	return risk.Filter{StudentIDs: []string{studentID}}
}

// ListRiskSignals reads each matching student with the cached attainment of
// their active CLOs. A course or program filter narrows both the students
// (by enrollment) and the CLOs considered.
func (s *Store) ListRiskSignals(ctx context.Context, f risk.Filter) ([]risk.Signals, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	courseScope := ""
	switch {
	case f.CourseID != "":
		courseScope = "SELECT id FROM courses WHERE id=" + arg(f.CourseID)
	case f.ProgramID != "":
		courseScope = "SELECT id FROM courses WHERE program_id=" + arg(f.ProgramID)
	}

	q := `SELECT u.id, u.display_name, COALESCE(u.last_login_at, u.created_at)
	        FROM users u WHERE u.role=` + arg("student")
	if courseScope != "" {
		q += ` AND EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = u.id AND e.course_id IN (` + courseScope + `))`
	}
	if len(f.StudentIDs) > 0 {
		start := len(args) + 1
		for _, id := range f.StudentIDs {
			args = append(args, id)
		}
		q += ` AND u.id IN (` + placeholders(start, len(f.StudentIDs)) + `)`
	}
	q += ` ORDER BY u.id`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []risk.Signals
	index := map[string]int{}
	for rows.Next() {
		var sg risk.Signals
		if err := rows.Scan(&sg.StudentID, &sg.DisplayName, &sg.LastLoginAt); err != nil {
			rows.Close()
			return nil, err
		}
		sg.CLOAttainment = map[string]float64{}
		index[sg.StudentID] = len(out)
		out = append(out, sg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	// Cached CLO attainment for the same population, limited to enrolled courses.
	args = args[:0]
	pq := `SELECT sp.student_id, sp.outcome_id, sp.average_score
	         FROM student_performance sp
	         JOIN learning_outcomes lo ON lo.id = sp.outcome_id
	         JOIN enrollments e ON e.student_id = sp.student_id AND e.course_id = lo.course_id
	        WHERE lo.type=` + arg("CLO") + ` AND lo.is_active=` + arg(true)
	switch {
	case f.CourseID != "":
		pq += ` AND lo.course_id=` + arg(f.CourseID)
	case f.ProgramID != "":
		pq += ` AND lo.course_id IN (SELECT id FROM courses WHERE program_id=` + arg(f.ProgramID) + `)`
	}
	start := len(args) + 1
	for _, sg := range out {
		args = append(args, sg.StudentID)
	}
	pq += ` AND sp.student_id IN (` + placeholders(start, len(out)) + `)`

	prows, err := s.DB.QueryContext(ctx, pq, args...)
	if err != nil {
		return nil, fmt.Errorf("clo attainment: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var sid, oid string
		var avg float64
		if err := prows.Scan(&sid, &oid, &avg); err != nil {
			return nil, err
		}
		if i, ok := index[sid]; ok {
			out[i].CLOAttainment[oid] = avg
		}
	}
	return out, prows.Err()
}

func (s *Store) ListStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM users WHERE role=$1 ORDER BY id`, "student")
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
