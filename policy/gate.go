package policy

// Policy defines the authorization rules for one resource kind.
type Policy interface {
	// MinRole is the lowest role that may attempt action. ok is false for actions the policy does not know.
	MinRole(action Action) (required Role, ok bool)
	// Allows applies the ownership or membership predicate for a non-admin actor already at MinRole or above.
	Allows(a Actor, action Action, subject any) bool
}

// AdminCarveOuts is implemented by policies that refuse some admin requests.
type AdminCarveOuts interface {
	AdminCarveOut(a Actor, action Action, subject any) (CarveOut, bool)
}

// Gate is the central registry of policies, one per Kind.
type Gate struct {
	policies map[Kind]Policy
}

// NewGate creates an empty Gate ready to register policies.
func NewGate() *Gate {
	return &Gate{policies: make(map[Kind]Policy)}
}

// NewDefaultGate returns a Gate with every resource policy of the site registered.
func NewDefaultGate() *Gate {
	g := NewGate()
	g.Register(KindPost, PostPolicy())
	g.Register(KindLab, LabPolicy())
	g.Register(KindUser, UserPolicy())
	g.Register(KindStaff, CatalogPolicy())
	g.Register(KindProgram, CatalogPolicy())
	g.Register(KindCourse, CatalogPolicy())
	g.Register(KindTeacher, TeacherProfilePolicy())
	g.Register(KindPublication, AuthoredPolicy())
	g.Register(KindProject, AuthoredPolicy())
	g.Register(KindAttachment, AuthoredPolicy())
	g.Register(KindComment, CommentPolicy())
	g.Register(KindContactMessage, ContactMessagePolicy())
	return g
}

// Register adds a policy for kind, replacing any existing one.
func (g *Gate) Register(kind Kind, p Policy) {
	g.policies[kind] = p
}

// Authorize returns nil when a may perform action on the subject of the given kind.
// Denials are *Denied (matching ErrUnauthorized); an unregistered kind yields ErrNoPolicyDefined.
func (g *Gate) Authorize(a Actor, action Action, kind Kind, subject any) error {
	p, ok := g.policies[kind]
	if !ok {
		return ErrNoPolicyDefined
	}
	required, known := p.MinRole(action)
	if !known {
		return &Denied{Kind: kind, Action: action, Required: RoleAdmin, Actual: a.Role}
	}

	// (a) admins pass unless a named carve-out applies
	if a.IsAdmin() && !a.IsGuest() {
		if c, ok := p.(AdminCarveOuts); ok {
			if reason, hit := c.AdminCarveOut(a, action, subject); hit {
				return &Denied{Kind: kind, Action: action, Required: required, Actual: a.Role, CarveOut: reason}
			}
		}
		return nil
	}

	// (b) below the action family's minimum role
	if !HasRoleOrHigher(a, required) {
		return &Denied{Kind: kind, Action: action, Required: required, Actual: a.Role}
	}

	// (c) ownership / membership, (d) default deny
	if p.Allows(a, action, subject) {
		return nil
	}
	return &Denied{Kind: kind, Action: action, Required: required, Actual: a.Role}
}

// Can is Authorize reduced to a boolean.
func (g *Gate) Can(a Actor, action Action, kind Kind, subject any) bool {
	return g.Authorize(a, action, kind, subject) == nil
}

// MinRole reports the minimum role the kind's policy requires for action.
func (g *Gate) MinRole(kind Kind, action Action) (Role, bool) {
	p, ok := g.policies[kind]
	if !ok {
		return RoleAdmin, false
	}
	return p.MinRole(action)
}
