package policy

// Action is an operation an actor wants to perform on a resource.
type Action string

const (
	ActionViewAny     Action = "viewAny"
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionRestore     Action = "restore"
	ActionForceDelete Action = "forceDelete"

	ActionPublish          Action = "publish"
	ActionUnpublish        Action = "unpublish"
	ActionManageCategories Action = "manageCategories"
	ActionBulkOperations   Action = "bulkOperations"
	ActionSchedulePost     Action = "schedulePost"
	ActionModerateComments Action = "moderateComments"
	ActionViewAnalytics    Action = "viewAnalytics"

	ActionManageMembers Action = "manageMembers"
	ActionManagePosts   Action = "managePosts"

	ActionAssignRole Action = "assignRole"
)

// Kind names a resource type registered on a Gate.
type Kind string

const (
	KindPost           Kind = "post"
	KindLab            Kind = "lab"
	KindUser           Kind = "user"
	KindStaff          Kind = "staff"
	KindTeacher        Kind = "teacher"
	KindProgram        Kind = "program"
	KindCourse         Kind = "course"
	KindPublication    Kind = "publication"
	KindProject        Kind = "project"
	KindAttachment     Kind = "attachment"
	KindComment        Kind = "comment"
	KindContactMessage Kind = "contact_message"
)

// Actor is the authenticated principal, or the guest when ID is zero.
type Actor struct {
	ID        uint
	Username  string
	Role      Role
	TeacherID *uint
}

// Guest is the actor of an anonymous request.
func Guest() Actor { return Actor{} }

// IsGuest reports whether the actor is anonymous.
func (a Actor) IsGuest() bool { return a.ID == 0 }

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// HasTeacherProfile reports whether the actor is linked to the teacher profile id.
func (a Actor) HasTeacherProfile(id uint) bool {
	return a.TeacherID != nil && id != 0 && *a.TeacherID == id
}

// owns reports whether a non-guest actor is the recorded owner.
func (a Actor) owns(ownerID uint) bool {
	return !a.IsGuest() && ownerID != 0 && a.ID == ownerID
}
