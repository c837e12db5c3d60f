package authz

import (
	"github.com/google/uuid"
)

// PrincipalKind distinguishes signed-in users from share-token guests.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGuest PrincipalKind = "guest"
)

// Principal is whoever is making the request. Guests have no identity beyond
// the token they present.
type Principal struct {
	Kind       PrincipalKind
	UserID     uuid.UUID
	ShareToken string
	GuestName  string
	GuestEmail string
}

func User(id uuid.UUID) Principal {
	return Principal{Kind: PrincipalUser, UserID: id}
}

func Guest(token string) Principal {
	return Principal{Kind: PrincipalGuest, ShareToken: token}
}

func (p Principal) IsUser() bool {
	return p.Kind == PrincipalUser && p.UserID != uuid.Nil
}

func (p Principal) IsGuest() bool {
	return p.Kind == PrincipalGuest && p.ShareToken != ""
}

// Label is how the principal shows up in activity entries and decision records.
func (p Principal) Label() string {
	switch {
	case p.IsUser():
		return p.UserID.String()
	case p.IsGuest():
		if p.GuestEmail != "" {
			return "guest:" + p.GuestEmail
		}
		if p.GuestName != "" {
			return "guest:" + p.GuestName
		}
		return "guest"
	default:
		return "anonymous"
	}
}

// Ref names the resource an action targets. Unset ids are uuid.Nil; whatever
// is set must belong to the same ownership chain.
type Ref struct {
	TeamID    uuid.UUID
	ProjectID uuid.UUID
	AssetID   uuid.UUID
}

func TeamRef(id uuid.UUID) Ref    { return Ref{TeamID: id} }
func ProjectRef(id uuid.UUID) Ref { return Ref{ProjectID: id} }
func AssetRef(id uuid.UUID) Ref   { return Ref{AssetID: id} }

func (r Ref) empty() bool {
	return r.TeamID == uuid.Nil && r.ProjectID == uuid.Nil && r.AssetID == uuid.Nil
}
