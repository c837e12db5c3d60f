// Package permissions holds the static role and guest capability tables.
// Both universes are cumulative: every tier inherits the tier below it.
package permissions

import (
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

type actionSet map[Action]struct{}

func newSet(parent actionSet, actions ...Action) actionSet {
	set := make(actionSet, len(parent)+len(actions))
	for a := range parent {
		set[a] = struct{}{}
	}
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

var (
	viewerActions = newSet(nil,
		TeamView,
		ProjectView,
		AssetView,
		ActivityView,
	)
	memberActions = newSet(viewerActions,
		ProjectCreate,
		AssetUpload,
		VersionCreate,
		CommentCreate,
		CommentResolve,
		CommentReact,
		AnnotationCreate,
		AnnotationUpdate,
		ApprovalNotify,
		ShareCreate,
		SummaryGenerate,
	)
	adminActions = newSet(memberActions,
		TeamManageMembers,
		ProjectUpdate,
		AssetDelete,
		VersionDelete,
		CommentDelete,
		AnnotationDelete,
		ApprovalManage,
		ApprovalDecide,
		ShareRevoke,
		ShareViewAnalytics,
	)
	ownerActions = newSet(adminActions,
		ProjectDelete,
	)

	roleActions = map[enums.MemberRole]actionSet{
		enums.MemberRoleViewer: viewerActions,
		enums.MemberRoleMember: memberActions,
		enums.MemberRoleAdmin:  adminActions,
		enums.MemberRoleOwner:  ownerActions,
	}
)

var (
	guestViewActions = newSet(nil,
		AssetView,
	)
	guestCommentActions = newSet(guestViewActions,
		CommentCreate,
		CommentReact,
		AnnotationCreate,
	)
	guestApproveActions = newSet(guestCommentActions,
		ApprovalDecide,
	)

	guestActions = map[enums.SharePermission]actionSet{
		enums.SharePermissionView:    guestViewActions,
		enums.SharePermissionComment: guestCommentActions,
		enums.SharePermissionApprove: guestApproveActions,
	}
)

// Allows reports whether a team member holding role may perform action.
func Allows(role enums.MemberRole, action Action) bool {
	set, ok := roleActions[role]
	if !ok {
		return false
	}
	_, allowed := set[action]
	return allowed
}

// AllowsAsGuest reports whether a share token at permission may perform action.
func AllowsAsGuest(permission enums.SharePermission, action Action) bool {
	set, ok := guestActions[permission]
	if !ok {
		return false
	}
	_, allowed := set[action]
	return allowed
}

// IsAtLeast compares roles in the order viewer < member < admin < owner.
// Unknown roles are never at least anything.
func IsAtLeast(role, minimum enums.MemberRole) bool {
	r, m := role.Rank(), minimum.Rank()
	if r < 0 || m < 0 {
		return false
	}
	return r >= m
}

// MinimumRole returns the least privileged role that allows action.
func MinimumRole(action Action) (enums.MemberRole, bool) {
	for _, role := range enums.MemberRoles() {
		if Allows(role, action) {
			return role, true
		}
	}
	return "", false
}

// Actions lists the full catalogue.
func Actions() []Action {
	return []Action{
		TeamView, TeamManageMembers,
		ProjectView, ProjectCreate, ProjectUpdate, ProjectDelete,
		AssetView, AssetUpload, AssetDelete,
		VersionCreate, VersionDelete,
		CommentCreate, CommentResolve, CommentDelete, CommentReact,
		AnnotationCreate, AnnotationUpdate, AnnotationDelete,
		ApprovalManage, ApprovalDecide, ApprovalNotify,
		ShareCreate, ShareRevoke, ShareViewAnalytics,
		ActivityView, SummaryGenerate,
	}
}
