package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
	"github.com/mind-engage/mindengage-obe/internal/store"
)

type fakeUsers struct {
	byName  map[string]store.User
	touched map[string]int64
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return store.User{}, apperr.NotFound("user", username)
	}
	return u, nil
}

func (f *fakeUsers) TouchLogin(_ context.Context, id string, at int64) error {
	f.touched[id] = at
	return nil
}

func (f *fakeUsers) UserRole(_ context.Context, sub string) (string, error) {
	for _, u := range f.byName {
		if u.ID == sub {
			return u.Role, nil
		}
	}
	return "", apperr.NotFound("user", sub)
}

func newUsers(t *testing.T) *fakeUsers {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &fakeUsers{
		byName:  map[string]store.User{"alice": {ID: "s1", Username: "alice", Role: "student", PasswordHash: hash}},
		touched: map[string]int64{},
	}
}

func TestLoginHandler(t *testing.T) {
	a := NewAuthService("test-secret")
	a.Now = func() time.Time { return time.Unix(1700000000, 0) }
	users := newUsers(t)
	h := LoginHandler(a, users, logger.Nop())

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"s3cret"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	c, err := a.Parse(out["access_token"])
	if err != nil || c.Sub != "s1" || c.Role != "student" {
		t.Fatalf("token claims: %+v err=%v", c, err)
	}
	if users.touched["s1"] != 1700000000 {
		t.Fatalf("last login not stamped: %v", users.touched)
	}
}

func TestJWTMiddlewareAndAttachRole(t *testing.T) {
	a := NewAuthService("test-secret")
	users := newUsers(t)
	var gotSub, gotRole string
	h := JWTMiddleware(a)(AttachRole(users, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, gotRole = rbac.SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer: status %d", rr.Code)
	}

	// The stored role wins over the claim.
	tok, _ := a.IssueJWT("s1", "admin")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || gotSub != "s1" || gotRole != "student" {
		t.Fatalf("status %d sub=%q role=%q", rr.Code, gotSub, gotRole)
	}

	tok, _ = a.IssueJWT("ghost", "teacher")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unknown user without fallback: status %d", rr.Code)
	}
}
