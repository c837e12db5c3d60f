package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/api/middleware"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

// principalFrom returns whoever the auth or guest middleware admitted.
func principalFrom(r *http.Request) (authz.Principal, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return authz.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}

// userFrom is principalFrom for routes only team members may call.
func userFrom(r *http.Request) (uuid.UUID, error) {
	p, err := principalFrom(r)
	if err != nil {
		return uuid.Nil, err
	}
	if !p.IsUser() || p.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "team member required")
	}
	return p.UserID, nil
}
