package authz

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

// Reason explains a denial.
type Reason string

const (
	ReasonUnauthenticated        Reason = "unauthenticated"
	ReasonNotMember              Reason = "not_member"
	ReasonInsufficientRole       Reason = "insufficient_role"
	ReasonInvalidToken           Reason = "invalid_token"
	ReasonExpired                Reason = "expired"
	ReasonOutOfScope             Reason = "out_of_scope"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonResourceNotFound       Reason = "resource_not_found"
	ReasonLookupFailed           Reason = "lookup_failed"
)

// Decision is the outcome of a single authorization check. On allow it also
// carries what was resolved along the way.
type Decision struct {
	Allowed bool
	Reason  Reason

	TeamID     uuid.UUID
	ProjectID  uuid.UUID
	AssetID    uuid.UUID
	Role       enums.MemberRole
	Permission enums.SharePermission
	Invite     *InviteGrant

	cause error
}

// InviteGrant is the slice of a review invite a guest request needs downstream.
type InviteGrant struct {
	ID         uuid.UUID
	AssetID    uuid.UUID
	Permission enums.SharePermission
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

func lookupFailed(err error) Decision {
	return Decision{Reason: ReasonLookupFailed, cause: err}
}

// Err maps a denial onto the API error taxonomy. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	case ReasonInvalidToken:
		return pkgerrors.New(pkgerrors.CodeNotFound, "review link not found")
	case ReasonExpired:
		return pkgerrors.New(pkgerrors.CodeExpired, "review link expired")
	case ReasonResourceNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "resource not found")
	case ReasonLookupFailed:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, d.cause, "authorization lookup failed")
	case ReasonNotMember:
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this team")
	case ReasonOutOfScope:
		return pkgerrors.New(pkgerrors.CodeForbidden, "resource outside of granted scope")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions")
	}
}
