package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
)

type RoleLookup interface {
	UserRole(ctx context.Context, sub string) (string, error)
}

// AttachRole replaces the token's role with the stored one so role changes take
// effect before the token expires. allowClaimFallback=true in dev/offline;
// false in prod, where unknown users are denied.
func AttachRole(users RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			role, err := users.UserRole(ctx, rbac.SubjectFromContext(ctx))
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case allowClaimFallback && claimRole != "" && (err == nil || errors.Is(err, apperr.ErrNotFound)):
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
