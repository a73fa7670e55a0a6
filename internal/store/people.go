package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/db"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	DisplayName  string `json:"display_name,omitempty"`
	PasswordHash string `json:"-"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

type Program struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CoordinatorID string `json:"coordinator_id,omitempty"`
}

type Course struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	Title     string `json:"title"`
	TeacherID string `json:"teacher_id,omitempty"`
}

func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, role, display_name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.Role, u.DisplayName, u.PasswordHash, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Username, apperr.ErrConflict)
	}
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	var last sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, username, role, display_name, password_hash, last_login_at, created_at
		  FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.Role, &u.DisplayName, &u.PasswordHash, &last, &u.CreatedAt)
	if err != nil {
		return User{}, notFound(err, "user", username)
	}
	u.LastLoginAt = int64Ptr(last)
	return u, nil
}

// UserRole looks a subject up by id or username.
func (s *Store) UserRole(ctx context.Context, sub string) (string, error) {
	var role string
	err := s.DB.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
	if err != nil {
		return "", notFound(err, "user", sub)
	}
	return role, nil
}

func (s *Store) TouchLogin(ctx context.Context, userID string, at int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE users SET last_login_at=$2 WHERE id=$1`, userID, at)
	return err
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]User, error) {
	q := `SELECT id, username, role, display_name, last_login_at, created_at FROM users`
	var args []any
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, role)
	}
	q += ` ORDER BY username`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		var last sql.NullInt64
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.DisplayName, &last, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.LastLoginAt = int64Ptr(last)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CreateProgram(ctx context.Context, p Program) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO programs (id, name, coordinator_id) VALUES ($1,$2,$3)`,
		p.ID, p.Name, nullString(p.CoordinatorID))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("program %s: %w", p.ID, apperr.ErrConflict)
	}
	return err
}

func (s *Store) CreateCourse(ctx context.Context, c Course) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO courses (id, program_id, title, teacher_id) VALUES ($1,$2,$3,$4)`,
		c.ID, c.ProgramID, c.Title, nullString(c.TeacherID))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("course %s: %w", c.ID, apperr.ErrConflict)
	}
	return err
}

// Enroll is idempotent.
func (s *Store) Enroll(ctx context.Context, studentID, courseID string, at int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, course_id, enrolled_at) VALUES ($1,$2,$3)
		ON CONFLICT (student_id, course_id) DO NOTHING`, studentID, courseID, at)
	return err
}

// TeacherStudentIDs lists the students enrolled in any course the teacher runs.
func (s *Store) TeacherStudentIDs(ctx context.Context, teacherID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT e.student_id FROM enrollments e JOIN courses c ON c.id = e.course_id
		 WHERE c.teacher_id=$1 ORDER BY e.student_id`, teacherID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// CourseTeacher returns the teacher of a course, empty when unassigned.
func (s *Store) CourseTeacher(ctx context.Context, courseID string) (string, error) {
	var t sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT teacher_id FROM courses WHERE id=$1`, courseID).Scan(&t)
	if err != nil {
		return "", notFound(err, "course", courseID)
	}
	return t.String, nil
}
