package policy

// Subjects describe the resource being authorized without tying the
// package to database models.

// PostSubject describes a bulletin post.
type PostSubject struct {
	OwnerID   uint
	Published bool
}

// LabSubject describes a lab by its member teacher profiles.
type LabSubject struct {
	MemberTeacherIDs []uint
}

// UserSubject describes a target account. NewRole is only read by assignRole.
type UserSubject struct {
	ID      uint
	Role    Role
	NewRole Role
}

// OwnedSubject describes any record with a creator.
type OwnedSubject struct {
	OwnerID uint
}

// ProfileSubject describes a teacher profile.
type ProfileSubject struct {
	TeacherID uint
}

// Rule is one row of a policy table. A nil Check means reaching Min is enough.
type Rule struct {
	Min   Role
	Check func(a Actor, subject any) bool
}

// Table is a Policy backed by a map of rules.
type Table struct {
	Rules map[Action]Rule
	Carve func(a Actor, action Action, subject any) (CarveOut, bool)
}

// MinRole implements Policy.
func (t Table) MinRole(action Action) (Role, bool) {
	r, ok := t.Rules[action]
	return r.Min, ok
}

// Allows implements Policy.
func (t Table) Allows(a Actor, action Action, subject any) bool {
	r, ok := t.Rules[action]
	if !ok {
		return false
	}
	if r.Check == nil {
		return true
	}
	return r.Check(a, subject)
}

// AdminCarveOut implements AdminCarveOuts.
func (t Table) AdminCarveOut(a Actor, action Action, subject any) (CarveOut, bool) {
	if t.Carve == nil {
		return "", false
	}
	return t.Carve(a, action, subject)
}

func rules(required Role, check func(Actor, any) bool, actions ...Action) map[Action]Rule {
	m := make(map[Action]Rule, len(actions))
	for _, act := range actions {
		m[act] = Rule{Min: required, Check: check}
	}
	return m
}

func merge(parts ...map[Action]Rule) map[Action]Rule {
	out := map[Action]Rule{}
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

func postSubject(subject any) (PostSubject, bool) {
	switch s := subject.(type) {
	case PostSubject:
		return s, true
	case *PostSubject:
		if s != nil {
			return *s, true
		}
	}
	return PostSubject{}, false
}

func ownerOf(subject any) (uint, bool) {
	switch s := subject.(type) {
	case OwnedSubject:
		return s.OwnerID, true
	case *OwnedSubject:
		if s != nil {
			return s.OwnerID, true
		}
	case PostSubject:
		return s.OwnerID, true
	}
	return 0, false
}

func userSubject(subject any) (UserSubject, bool) {
	switch s := subject.(type) {
	case UserSubject:
		return s, true
	case *UserSubject:
		if s != nil {
			return *s, true
		}
	}
	return UserSubject{}, false
}

// owner is the ownership predicate shared by authored resources.
func owner(a Actor, subject any) bool {
	id, ok := ownerOf(subject)
	return ok && a.owns(id)
}

// PostPolicy: everyone lists, drafts are private to owner and admin,
// teachers write their own posts, publishing and moderation are admin only.
func PostPolicy() Table {
	visible := func(a Actor, subject any) bool {
		s, ok := postSubject(subject)
		if !ok {
			return false
		}
		return s.Published || a.owns(s.OwnerID)
	}
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny),
		rules(RoleGuest, visible, ActionView),
		rules(RoleTeacher, nil, ActionCreate, ActionViewAnalytics),
		rules(RoleTeacher, owner, ActionUpdate, ActionDelete, ActionRestore),
		rules(RoleAdmin, nil, ActionForceDelete, ActionPublish, ActionUnpublish,
			ActionManageCategories, ActionBulkOperations, ActionSchedulePost, ActionModerateComments),
	)}
}

// LabPolicy: labs are public; member teachers manage their lab.
func LabPolicy() Table {
	member := func(a Actor, subject any) bool {
		var s LabSubject
		switch v := subject.(type) {
		case LabSubject:
			s = v
		case *LabSubject:
			if v == nil {
				return false
			}
			s = *v
		default:
			return false
		}
		if a.TeacherID == nil {
			return false
		}
		for _, id := range s.MemberTeacherIDs {
			if id == *a.TeacherID {
				return true
			}
		}
		return false
	}
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny, ActionView),
		rules(RoleAdmin, nil, ActionCreate, ActionDelete, ActionRestore, ActionForceDelete),
		rules(RoleTeacher, member, ActionUpdate, ActionManageMembers, ActionViewAnalytics, ActionManagePosts),
	)}
}

// UserPolicy: teachers see and manage plain users, everyone manages
// themselves, account lifecycle and roles belong to admins.
func UserPolicy() Table {
	selfOrManaged := func(a Actor, subject any) bool {
		s, ok := userSubject(subject)
		if !ok {
			return false
		}
		if a.owns(s.ID) {
			return true
		}
		return a.Role == RoleTeacher && s.Role.Rank() < RoleTeacher.Rank()
	}
	carve := func(a Actor, action Action, subject any) (CarveOut, bool) {
		switch action {
		case ActionDelete, ActionForceDelete, ActionUpdate, ActionAssignRole:
		default:
			return "", false
		}
		s, ok := userSubject(subject)
		if !ok {
			return CarveOutUnknownSubject, true
		}
		self := s.ID == a.ID
		switch action {
		case ActionDelete:
			if self {
				return CarveOutDeleteSelf, true
			}
			if s.Role == RoleAdmin {
				return CarveOutDeleteAdmin, true
			}
		case ActionForceDelete:
			if self {
				return CarveOutForceDeleteSelf, true
			}
			if s.Role == RoleAdmin {
				return CarveOutDeleteAdmin, true
			}
		case ActionUpdate:
			if !self && s.Role == RoleAdmin {
				return CarveOutUpdateOtherAdmin, true
			}
		case ActionAssignRole:
			if s.NewRole.Rank() >= RoleAdmin.Rank() {
				return CarveOutAssignAdminRole, true
			}
			if s.Role == RoleAdmin {
				return CarveOutReassignAdmin, true
			}
		}
		return "", false
	}
	return Table{
		Rules: merge(
			rules(RoleTeacher, nil, ActionViewAny),
			rules(RoleUser, selfOrManaged, ActionView, ActionUpdate),
			rules(RoleAdmin, nil, ActionCreate, ActionDelete, ActionRestore, ActionForceDelete, ActionAssignRole),
		),
		Carve: carve,
	}
}

// CatalogPolicy covers staff, programs and courses: public reads, admin writes.
func CatalogPolicy() Table {
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny, ActionView),
		rules(RoleAdmin, nil, ActionCreate, ActionUpdate, ActionDelete, ActionRestore, ActionForceDelete),
	)}
}

// TeacherProfilePolicy lets a teacher edit the profile linked to their account.
func TeacherProfilePolicy() Table {
	linked := func(a Actor, subject any) bool {
		switch s := subject.(type) {
		case ProfileSubject:
			return a.HasTeacherProfile(s.TeacherID)
		case *ProfileSubject:
			return s != nil && a.HasTeacherProfile(s.TeacherID)
		}
		return false
	}
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny, ActionView),
		rules(RoleTeacher, linked, ActionUpdate),
		rules(RoleAdmin, nil, ActionCreate, ActionDelete, ActionRestore, ActionForceDelete),
	)}
}

// AuthoredPolicy covers publications, projects and attachments: teachers
// create and manage what they created, purging is admin only.
func AuthoredPolicy() Table {
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny, ActionView),
		rules(RoleTeacher, nil, ActionCreate),
		rules(RoleTeacher, owner, ActionUpdate, ActionDelete, ActionRestore),
		rules(RoleAdmin, nil, ActionForceDelete),
	)}
}

// CommentPolicy lets any signed-in user comment and remove their own comments.
func CommentPolicy() Table {
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionViewAny, ActionView),
		rules(RoleUser, nil, ActionCreate),
		rules(RoleUser, owner, ActionDelete),
	)}
}

// ContactMessagePolicy: anyone may write in, only admins read and process.
func ContactMessagePolicy() Table {
	return Table{Rules: merge(
		rules(RoleGuest, nil, ActionCreate),
		rules(RoleAdmin, nil, ActionViewAny, ActionView, ActionUpdate, ActionDelete, ActionForceDelete),
	)}
}
