package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxPrincipal contextKey = "principal"
	ctxInvite    contextKey = "invite"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// WithUserID seeds an authenticated user. Handlers read it back through
// PrincipalFromContext.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID.String())
	return context.WithValue(ctx, ctxPrincipal, authz.User(userID))
}

// WithGuest seeds a share-token principal and the invite it resolved to.
func WithGuest(ctx context.Context, p authz.Principal, invite *models.ReviewInvite) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPrincipal, p)
	return context.WithValue(ctx, ctxInvite, invite)
}

func PrincipalFromContext(ctx context.Context) (authz.Principal, bool) {
	if ctx == nil {
		return authz.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(authz.Principal)
	return p, ok
}

func InviteFromContext(ctx context.Context) (*models.ReviewInvite, bool) {
	if ctx == nil {
		return nil, false
	}
	invite, ok := ctx.Value(ctxInvite).(*models.ReviewInvite)
	return invite, ok && invite != nil
}
