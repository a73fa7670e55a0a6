package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/db"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

// CreateAssignment stores the rubric snapshot and one rubric_criteria row per
// criterion so outcome lookups do not have to decode JSON.
func (s *Store) CreateAssignment(ctx context.Context, a grading.Assignment) error {
	rubric, err := json.Marshal(a.Rubric)
	if err != nil {
		return fmt.Errorf("encode rubric: %w", err)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (id, course_id, teacher_id, title, total_points, published_at, due_at, rubric_json, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.CourseID, a.TeacherID, a.Title, a.TotalPoints, a.PublishedAt, a.DueAt, string(rubric), a.CreatedAt)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("assignment %s: %w", a.ID, apperr.ErrConflict)
		}
		if err != nil {
			return err
		}
		for i, c := range a.Rubric.Criteria {
			weight := c.Weight
			if weight == 0 {
				weight = 1
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rubric_criteria (id, assignment_id, outcome_id, description, max_points, weight, position)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				c.ID, a.ID, c.OutcomeID, c.Description, c.MaxPoints, weight, i); err != nil {
				return fmt.Errorf("insert criterion %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) GetAssignment(ctx context.Context, id string) (grading.Assignment, error) {
	var a grading.Assignment
	var rubric string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, course_id, teacher_id, title, total_points, published_at, due_at, rubric_json, created_at
		  FROM assignments WHERE id=$1`, id).
		Scan(&a.ID, &a.CourseID, &a.TeacherID, &a.Title, &a.TotalPoints, &a.PublishedAt, &a.DueAt, &rubric, &a.CreatedAt)
	if err != nil {
		return grading.Assignment{}, notFound(err, "assignment", id)
	}
	if err := json.Unmarshal([]byte(rubric), &a.Rubric); err != nil {
		return grading.Assignment{}, fmt.Errorf("assignment %s: decode rubric: %w", id, err)
	}
	a.Rubric.AssignmentID = a.ID
	return a, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub grading.Submission) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO student_submissions (id, assignment_id, student_id, submitted_at)
		VALUES ($1,$2,$3,$4)`,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.SubmittedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("student %s already submitted %s: %w", sub.StudentID, sub.AssignmentID, apperr.ErrConflict)
	}
	return err
}

func (s *Store) GetSubmission(ctx context.Context, id string) (grading.Submission, error) {
	var sub grading.Submission
	var total sql.NullFloat64
	var gradedAt sql.NullInt64
	var gradedBy sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, assignment_id, student_id, submitted_at, total_score, feedback, graded_at, graded_by
		  FROM student_submissions WHERE id=$1`, id).
		Scan(&sub.ID, &sub.AssignmentID, &sub.StudentID, &sub.SubmittedAt, &total, &sub.Feedback, &gradedAt, &gradedBy)
	if err != nil {
		return grading.Submission{}, notFound(err, "submission", id)
	}
	if total.Valid {
		v := total.Float64
		sub.TotalScore = &v
	}
	sub.GradedAt = int64Ptr(gradedAt)
	sub.GradedBy = gradedBy.String
	return sub, nil
}

// CreateGrade inserts the grade and stamps the submission in one transaction.
// The UNIQUE(submission_id) constraint decides concurrent graders.
func (s *Store) CreateGrade(ctx context.Context, g grading.Grade) error {
	criteria, err := json.Marshal(g.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grades (id, submission_id, assignment_id, student_id, criteria_json,
			                    total_score, max_score, score_percent, feedback, graded_by, graded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			g.ID, g.SubmissionID, g.AssignmentID, g.StudentID, string(criteria),
			g.TotalScore, g.MaxScore, g.ScorePercent, g.Feedback, g.GradedBy, g.GradedAt)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("submission %s: %w", g.SubmissionID, apperr.ErrAlreadyGraded)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE student_submissions
			   SET total_score=$2, feedback=$3, graded_at=$4, graded_by=$5
			 WHERE id=$1`,
			g.SubmissionID, g.TotalScore, g.Feedback, g.GradedAt, g.GradedBy); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, syncx.TypeGradeCreated, g.ID, map[string]any{
			"grade_id": g.ID, "submission_id": g.SubmissionID, "student_id": g.StudentID,
			"assignment_id": g.AssignmentID, "score_percent": g.ScorePercent,
		})
	})
}

func (s *Store) GetGrade(ctx context.Context, id string) (grading.Grade, error) {
	var g grading.Grade
	var criteria string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, submission_id, assignment_id, student_id, criteria_json,
		       total_score, max_score, score_percent, feedback, graded_by, graded_at
		  FROM grades WHERE id=$1`, id).
		Scan(&g.ID, &g.SubmissionID, &g.AssignmentID, &g.StudentID, &criteria,
			&g.TotalScore, &g.MaxScore, &g.ScorePercent, &g.Feedback, &g.GradedBy, &g.GradedAt)
	if err != nil {
		return grading.Grade{}, notFound(err, "grade", id)
	}
	if err := json.Unmarshal([]byte(criteria), &g.Criteria); err != nil {
		return grading.Grade{}, fmt.Errorf("grade %s: decode criteria: %w", id, err)
	}
	return g, nil
}

// CreateAmendment appends the next revision for the grade and moves the
// submission's displayed total to it. The original grade row is untouched.
func (s *Store) CreateAmendment(ctx context.Context, a grading.Amendment, studentID string) error {
	criteria, err := json.Marshal(a.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		var submissionID string
		var revision int
		err := tx.QueryRowContext(ctx, `
			SELECT g.submission_id,
			       COALESCE((SELECT MAX(revision) FROM grade_amendments WHERE grade_id=g.id), 0) + 1
			  FROM grades g WHERE g.id=$1`, a.GradeID).Scan(&submissionID, &revision)
		if err != nil {
			return notFound(err, "grade", a.GradeID)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO grade_amendments (id, grade_id, revision, criteria_json, total_score, score_percent, reason, amended_by, amended_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.GradeID, revision, string(criteria), a.TotalScore, a.ScorePercent, a.Reason, a.AmendedBy, a.AmendedAt)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("grade %s revision %d: %w", a.GradeID, revision, apperr.ErrConflict)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE student_submissions SET total_score=$2 WHERE id=$1`, submissionID, a.TotalScore); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, syncx.TypeGradeAmended, a.GradeID, map[string]any{
			"grade_id": a.GradeID, "amendment_id": a.ID, "revision": revision,
			"student_id": studentID, "score_percent": a.ScorePercent, "reason": a.Reason,
		})
	})
}
