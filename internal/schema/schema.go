// Package schema names the entity types, attribute keys, and secondary
// indexes of the single heterogeneous entity collection. Every domain package
// reads and writes the collection through this vocabulary; the index list is
// declared once here and registered on the store client at process start.
package schema

import "github.com/teamstatus-dev/backend/internal/store"

// Entity type discriminators.
const (
	TypeUser               = "user"
	TypeOrganization       = "organization"
	TypeOrganizationMember = "organizationMember"
	TypeProject            = "project"
	TypeProjectMember      = "projectMember"
	TypeProjectInvitation  = "projectInvitation"
	TypeStatus             = "projectStatus"
	TypeReaction           = "statusReaction"
	TypeSync               = "projectSync"
	TypeEmailLoginRequest  = "emailLoginRequest"
)

// Attribute keys. Attribute values are strings; set-valued attributes (sync
// project lists) hold JSON.
const (
	AttrID             = "id"
	AttrEmail          = "email"
	AttrName           = "name"
	AttrPronouns       = "pronouns"
	AttrColor          = "color"
	AttrOrganizationID = "organizationId"
	AttrProjectID      = "projectId"
	AttrStatusID       = "statusId"
	AttrUserID         = "userId"
	AttrRole           = "role"
	AttrMessage        = "message"
	AttrAttribution    = "attribution"
	AttrDescription    = "description"
	AttrEmoji          = "emoji"
	AttrInvitee        = "invitee"
	AttrInviter        = "inviter"
	AttrOwner          = "owner"
	AttrProjects       = "projects"
	AttrTitle          = "title"
	AttrDateFrom       = "dateFrom"
	AttrDateTo         = "dateTo"
	AttrShareToken     = "shareToken"
	AttrPIN            = "pin"
	AttrCreatedAt      = "createdAt"
	AttrDeletedAt      = "deletedAt"

	// Tombstone-by-rename targets. Deletion moves the live reference here,
	// removing the row from the index-bearing attribute set while keeping it
	// retrievable by key.
	AttrDeletedProjectID = "deletedProjectId"
	AttrDeletedStatusID  = "deletedStatusId"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Secondary index names.
const (
	IndexEmailUsers          = "emailUsers"
	IndexUserOrganizations   = "userOrganizations"
	IndexOrganizationMembers = "organizationMembers"
	IndexUserProjects        = "userProjects"
	IndexProjectMembers      = "projectMembers"
	IndexUserInvitations     = "userInvitations"
	IndexProjectStatuses     = "projectStatuses"
	IndexStatusReactions     = "statusReactions"
	IndexOwnerSyncs          = "ownerSyncs"
)

// Indexes returns every secondary index the core declares. The store rejects
// queries against anything not in this list.
func Indexes() []store.IndexDefinition {
	return []store.IndexDefinition{
		{Name: IndexEmailUsers, ItemType: TypeUser, PartitionAttribute: AttrEmail, SortAttribute: AttrID},
		{Name: IndexUserOrganizations, ItemType: TypeOrganizationMember, PartitionAttribute: AttrUserID, SortAttribute: AttrOrganizationID},
		{Name: IndexOrganizationMembers, ItemType: TypeOrganizationMember, PartitionAttribute: AttrOrganizationID, SortAttribute: AttrUserID},
		{Name: IndexUserProjects, ItemType: TypeProjectMember, PartitionAttribute: AttrUserID, SortAttribute: AttrProjectID},
		{Name: IndexProjectMembers, ItemType: TypeProjectMember, PartitionAttribute: AttrProjectID, SortAttribute: AttrUserID},
		{Name: IndexUserInvitations, ItemType: TypeProjectInvitation, PartitionAttribute: AttrInvitee, SortAttribute: AttrID},
		{Name: IndexProjectStatuses, ItemType: TypeStatus, PartitionAttribute: AttrProjectID, SortAttribute: AttrID},
		{Name: IndexStatusReactions, ItemType: TypeReaction, PartitionAttribute: AttrStatusID, SortAttribute: AttrID},
		{Name: IndexOwnerSyncs, ItemType: TypeSync, PartitionAttribute: AttrOwner, SortAttribute: AttrID},
	}
}
