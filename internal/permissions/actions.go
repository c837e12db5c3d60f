package permissions

// Action is a named capability checked against a team role or a guest permission.
type Action string

const (
	TeamView          Action = "team.view"
	TeamManageMembers Action = "team.manage_members"

	ProjectView   Action = "project.view"
	ProjectCreate Action = "project.create"
	ProjectUpdate Action = "project.update"
	ProjectDelete Action = "project.delete"

	AssetView   Action = "asset.view"
	AssetUpload Action = "asset.upload"
	AssetDelete Action = "asset.delete"

	VersionCreate Action = "version.create"
	VersionDelete Action = "version.delete"

	CommentCreate  Action = "comment.create"
	CommentResolve Action = "comment.resolve"
	CommentDelete  Action = "comment.delete"
	CommentReact   Action = "comment.react"

	AnnotationCreate Action = "annotation.create"
	AnnotationUpdate Action = "annotation.update"
	AnnotationDelete Action = "annotation.delete"

	ApprovalManage Action = "approval.manage"
	ApprovalDecide Action = "approval.decide"
	ApprovalNotify Action = "approval.notify"

	ShareCreate        Action = "share.create"
	ShareRevoke        Action = "share.revoke"
	ShareViewAnalytics Action = "share.view_analytics"

	ActivityView    Action = "activity.view"
	SummaryGenerate Action = "summary.generate"
)

func (a Action) String() string {
	return string(a)
}
