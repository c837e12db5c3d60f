package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

func TestIsAtLeastIsTotalOrder(t *testing.T) {
	roles := enums.MemberRoles()
	for i, a := range roles {
		for j, b := range roles {
			require.Equal(t, i >= j, IsAtLeast(a, b), "IsAtLeast(%s, %s)", a, b)
		}
	}
	require.False(t, IsAtLeast("intern", enums.MemberRoleViewer))
	require.False(t, IsAtLeast(enums.MemberRoleOwner, "intern"))
}

func TestRolesAreMonotonicSupersets(t *testing.T) {
	roles := enums.MemberRoles()
	for i := 1; i < len(roles); i++ {
		lower, higher := roles[i-1], roles[i]
		for _, action := range Actions() {
			if Allows(lower, action) {
				require.True(t, Allows(higher, action), "%s allows %s but %s does not", lower, action, higher)
			}
		}
	}
}

func TestOwnerCanDoEverythingAdminCan(t *testing.T) {
	for _, action := range Actions() {
		if Allows(enums.MemberRoleAdmin, action) {
			require.True(t, Allows(enums.MemberRoleOwner, action), action)
		}
	}
}

func TestRoleSpotChecks(t *testing.T) {
	require.True(t, Allows(enums.MemberRoleViewer, AssetView))
	require.False(t, Allows(enums.MemberRoleViewer, CommentCreate))
	require.True(t, Allows(enums.MemberRoleMember, VersionCreate))
	require.False(t, Allows(enums.MemberRoleMember, ApprovalDecide))
	require.True(t, Allows(enums.MemberRoleAdmin, ApprovalDecide))
	require.False(t, Allows(enums.MemberRoleAdmin, ProjectDelete))
	require.True(t, Allows(enums.MemberRoleOwner, ProjectDelete))
	require.False(t, Allows("", AssetView))
}

func TestGuestPermissions(t *testing.T) {
	require.True(t, AllowsAsGuest(enums.SharePermissionView, AssetView))
	require.False(t, AllowsAsGuest(enums.SharePermissionView, CommentCreate))

	require.True(t, AllowsAsGuest(enums.SharePermissionComment, CommentCreate))
	require.False(t, AllowsAsGuest(enums.SharePermissionComment, ApprovalDecide))

	require.True(t, AllowsAsGuest(enums.SharePermissionApprove, CommentCreate))
	require.True(t, AllowsAsGuest(enums.SharePermissionApprove, ApprovalDecide))

	// guests never reach team administration
	for _, perm := range enums.SharePermissions() {
		require.False(t, AllowsAsGuest(perm, ShareCreate))
		require.False(t, AllowsAsGuest(perm, TeamManageMembers))
		require.False(t, AllowsAsGuest(perm, CommentDelete))
	}
}

func TestGuestPermissionsAreCumulative(t *testing.T) {
	perms := enums.SharePermissions()
	for i := 1; i < len(perms); i++ {
		for _, action := range Actions() {
			if AllowsAsGuest(perms[i-1], action) {
				require.True(t, AllowsAsGuest(perms[i], action), "%s -> %s", perms[i], action)
			}
		}
	}
}

func TestMinimumRole(t *testing.T) {
	role, ok := MinimumRole(ApprovalDecide)
	require.True(t, ok)
	require.Equal(t, enums.MemberRoleAdmin, role)

	_, ok = MinimumRole(Action("nope"))
	require.False(t, ok)
}
