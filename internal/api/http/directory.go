package http

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	auth "github.com/mind-engage/mindengage-obe/internal/auth/middleware"
	"github.com/mind-engage/mindengage-obe/internal/store"
)

type userReq struct {
	ID          string `json:"id"`
	Username    string `json:"username" validate:"required,min=2,max=64"`
	Role        string `json:"role" validate:"required,oneof=student teacher coordinator admin"`
	DisplayName string `json:"display_name" validate:"max=200"`
	Password    string `json:"password" validate:"required,min=8"`
}

// CreateUser accepts one JSON user, or a multipart "file" holding a CSV with
// id,username,role,password[,display_name] columns.
func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	var reqs []userReq
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, a.Log, apperr.Validation("file required"))
			return
		}
		defer f.Close()
		if reqs, err = parseUserCSV(f); err != nil {
			writeError(w, a.Log, apperr.Validation("bad csv: %v", err))
			return
		}
		for i := range reqs {
			if err := validateStruct(&reqs[i]); err != nil {
				writeError(w, a.Log, err)
				return
			}
		}
	} else {
		var req userReq
		if err := decode(r, &req); err != nil {
			writeError(w, a.Log, err)
			return
		}
		reqs = []userReq{req}
	}

	created := make([]store.User, 0, len(reqs))
	now := time.Now().Unix()
	for _, req := range reqs {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, a.Log, err)
			return
		}
		u := store.User{
			ID: req.ID, Username: req.Username, Role: req.Role,
			DisplayName: req.DisplayName, PasswordHash: hash, CreatedAt: now,
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if err := a.Directory.CreateUser(r.Context(), u); err != nil {
			writeError(w, a.Log, err)
			return
		}
		created = append(created, u)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"users": created})
}

func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	out, err := a.Directory.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

type programReq struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"notblank"`
	CoordinatorID string `json:"coordinator_id"`
}

func (a *API) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req programReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p := store.Program(req)
	if err := a.Directory.CreateProgram(r.Context(), p); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type courseReq struct {
	ID        string `json:"id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	Title     string `json:"title" validate:"notblank"`
	TeacherID string `json:"teacher_id"`
}

func (a *API) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	c := store.Course(req)
	if err := a.Directory.CreateCourse(r.Context(), c); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type enrollReq struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

func (a *API) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	courseID := chi.URLParam(r, "id")
	now := time.Now().Unix()
	for _, sid := range req.StudentIDs {
		if err := a.Directory.Enroll(r.Context(), sid, courseID, now); err != nil {
			writeError(w, a.Log, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"course_id": courseID, "enrolled": len(req.StudentIDs)})
}

func parseUserCSV(r io.Reader) ([]userReq, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "role", "password"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var rows []userReq
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, userReq{
			ID:          col(rec, "id"),
			Username:    col(rec, "username"),
			Role:        strings.ToLower(col(rec, "role")),
			DisplayName: col(rec, "display_name"),
			Password:    col(rec, "password"),
		})
	}
	return rows, nil
}
