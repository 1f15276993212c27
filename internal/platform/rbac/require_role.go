// Package rbac checks the caller's role from the identity context set by the auth middleware.
package rbac

import (
	"context"
	"errors"

	"ihire-proctoring/backend/internal/server/middleware"
)

// Roles issued by the identity provider.
const (
	RoleCandidate = "candidate"
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

var (
	// ErrUnauthenticated is returned when the context carries no verified identity.
	ErrUnauthenticated = errors.New("user context required")
	// ErrForbidden is returned when the caller's role is not allowed.
	ErrForbidden = errors.New("insufficient role")
)

// RequireAuthenticated ensures the caller is authenticated (any role).
// Returns the user ID on success; ErrUnauthenticated otherwise.
func RequireAuthenticated(ctx context.Context) (userID string, err error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// RequireRole ensures the caller is authenticated and has one of roles.
// Returns the user ID on success; ErrUnauthenticated or ErrForbidden on failure.
func RequireRole(ctx context.Context, roles ...string) (userID string, err error) {
	userID, err = RequireAuthenticated(ctx)
	if err != nil {
		return "", err
	}
	role, _ := middleware.GetRole(ctx)
	for _, r := range roles {
		if role == r {
			return userID, nil
		}
	}
	return "", ErrForbidden
}

// RequireStaff allows recruiters and admins, who may read any candidate's sessions.
func RequireStaff(ctx context.Context) (userID string, err error) {
	return RequireRole(ctx, RoleRecruiter, RoleAdmin)
}
