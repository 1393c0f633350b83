package policy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cppla/deptcms/policy"
)

func uptr(v uint) *uint { return &v }

var (
	admin   = policy.Actor{ID: 1, Role: policy.RoleAdmin}
	teacher = policy.Actor{ID: 2, Role: policy.RoleTeacher, TeacherID: uptr(20)}
	other   = policy.Actor{ID: 3, Role: policy.RoleTeacher, TeacherID: uptr(30)}
	user    = policy.Actor{ID: 4, Role: policy.RoleUser}
	guest   = policy.Guest()
)

func TestRoleRank(t *testing.T) {
	cases := map[policy.Role]int{
		policy.RoleAdmin:   3,
		policy.RoleTeacher: 2,
		policy.RoleUser:    1,
		policy.RoleGuest:   0,
		"editor":           0,
	}
	for r, want := range cases {
		if got := r.Rank(); got != want {
			t.Errorf("Rank(%q) = %d, want %d", r, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := policy.ParseRole(" Teacher "); !ok || r != policy.RoleTeacher {
		t.Errorf("expected teacher, got %q %v", r, ok)
	}
	if _, ok := policy.ParseRole("root"); ok {
		t.Error("root must not parse as a role")
	}
}

func TestHasRoleOrHigherIsMonotonic(t *testing.T) {
	roles := []policy.Role{policy.RoleGuest, policy.RoleUser, policy.RoleTeacher, policy.RoleAdmin}
	for _, required := range roles {
		for i, r := range roles {
			if !policy.HasRoleOrHigher(policy.Actor{ID: 9, Role: r}, required) {
				continue
			}
			for _, higher := range roles[i:] {
				if !policy.HasRoleOrHigher(policy.Actor{ID: 9, Role: higher}, required) {
					t.Errorf("%s passes %s but higher %s does not", r, required, higher)
				}
			}
		}
	}
}

func TestRouteGateMonotonic(t *testing.T) {
	g := policy.NewDefaultGate()
	// viewAny on users is gated by role alone
	if g.Can(user, policy.ActionViewAny, policy.KindUser, nil) {
		t.Error("user must not list users")
	}
	if !g.Can(teacher, policy.ActionViewAny, policy.KindUser, nil) || !g.Can(admin, policy.ActionViewAny, policy.KindUser, nil) {
		t.Error("teacher and admin must list users")
	}
}

func TestPostPolicy(t *testing.T) {
	g := policy.NewDefaultGate()
	draft := policy.PostSubject{OwnerID: teacher.ID, Published: false}
	published := policy.PostSubject{OwnerID: teacher.ID, Published: true}

	cases := []struct {
		name    string
		actor   policy.Actor
		action  policy.Action
		subject any
		want    bool
	}{
		{"guest lists", guest, policy.ActionViewAny, nil, true},
		{"guest sees published", guest, policy.ActionView, published, true},
		{"guest cannot see draft", guest, policy.ActionView, draft, false},
		{"user cannot see draft", user, policy.ActionView, draft, false},
		{"other teacher cannot see draft", other, policy.ActionView, draft, false},
		{"owner sees draft", teacher, policy.ActionView, draft, true},
		{"admin sees draft", admin, policy.ActionView, draft, true},
		{"user cannot create", user, policy.ActionCreate, nil, false},
		{"teacher creates", teacher, policy.ActionCreate, nil, true},
		{"owner updates", teacher, policy.ActionUpdate, draft, true},
		{"other teacher cannot update", other, policy.ActionUpdate, draft, false},
		{"owner restores", teacher, policy.ActionRestore, draft, true},
		{"owner cannot force delete", teacher, policy.ActionForceDelete, draft, false},
		{"admin force deletes", admin, policy.ActionForceDelete, draft, true},
		{"teacher cannot publish", teacher, policy.ActionPublish, draft, false},
		{"admin publishes", admin, policy.ActionPublish, draft, true},
		{"teacher cannot bulk", teacher, policy.ActionBulkOperations, nil, false},
		{"teacher cannot moderate", teacher, policy.ActionModerateComments, nil, false},
		{"teacher views analytics", other, policy.ActionViewAnalytics, published, true},
		{"user cannot view analytics", user, policy.ActionViewAnalytics, published, false},
		{"wrong subject type denied", other, policy.ActionUpdate, "post", false},
	}
	for _, tc := range cases {
		if got := g.Can(tc.actor, tc.action, policy.KindPost, tc.subject); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPostVisibilityForNonOwners(t *testing.T) {
	g := policy.NewDefaultGate()
	for _, a := range []policy.Actor{guest, user, other} {
		for _, published := range []bool{true, false} {
			got := g.Can(a, policy.ActionView, policy.KindPost, policy.PostSubject{OwnerID: teacher.ID, Published: published})
			if got != published {
				t.Errorf("actor %d published=%v: view=%v", a.ID, published, got)
			}
		}
	}
}

func TestLabMembershipGate(t *testing.T) {
	g := policy.NewDefaultGate()
	lab := policy.LabSubject{MemberTeacherIDs: []uint{20, 21}}
	memberActions := []policy.Action{policy.ActionUpdate, policy.ActionManageMembers, policy.ActionViewAnalytics, policy.ActionManagePosts}
	for _, act := range memberActions {
		if !g.Can(teacher, act, policy.KindLab, lab) {
			t.Errorf("member teacher should %s", act)
		}
		if g.Can(other, act, policy.KindLab, lab) {
			t.Errorf("non-member teacher must not %s", act)
		}
		if !g.Can(admin, act, policy.KindLab, lab) {
			t.Errorf("admin should %s", act)
		}
		if g.Can(user, act, policy.KindLab, lab) {
			t.Errorf("user must not %s", act)
		}
	}
	noProfile := policy.Actor{ID: 7, Role: policy.RoleTeacher}
	if g.Can(noProfile, policy.ActionUpdate, policy.KindLab, lab) {
		t.Error("teacher without a profile is never a member")
	}
	for _, act := range []policy.Action{policy.ActionCreate, policy.ActionDelete, policy.ActionRestore, policy.ActionForceDelete} {
		if g.Can(teacher, act, policy.KindLab, lab) {
			t.Errorf("member teacher must not %s a lab", act)
		}
	}
	if !g.Can(guest, policy.ActionView, policy.KindLab, lab) {
		t.Error("labs are public")
	}
}

func TestUserPolicy(t *testing.T) {
	g := policy.NewDefaultGate()
	self := func(a policy.Actor) policy.UserSubject { return policy.UserSubject{ID: a.ID, Role: a.Role} }
	plain := policy.UserSubject{ID: 50, Role: policy.RoleUser}
	otherAdmin := policy.UserSubject{ID: 51, Role: policy.RoleAdmin}
	otherTeacher := self(other)

	cases := []struct {
		name    string
		actor   policy.Actor
		action  policy.Action
		subject policy.UserSubject
		want    bool
	}{
		{"admin views anyone", admin, policy.ActionView, otherAdmin, true},
		{"teacher views self", teacher, policy.ActionView, self(teacher), true},
		{"teacher views plain user", teacher, policy.ActionView, plain, true},
		{"teacher cannot view teacher", teacher, policy.ActionView, otherTeacher, false},
		{"teacher cannot view admin", teacher, policy.ActionView, otherAdmin, false},
		{"user views self", user, policy.ActionView, self(user), true},
		{"user cannot view others", user, policy.ActionView, plain, false},
		{"admin updates self", admin, policy.ActionUpdate, self(admin), true},
		{"admin updates teacher", admin, policy.ActionUpdate, otherTeacher, true},
		{"admin cannot update other admin", admin, policy.ActionUpdate, otherAdmin, false},
		{"teacher updates managed user", teacher, policy.ActionUpdate, plain, true},
		{"teacher cannot update teacher", teacher, policy.ActionUpdate, otherTeacher, false},
		{"user updates self", user, policy.ActionUpdate, self(user), true},
		{"user cannot update others", user, policy.ActionUpdate, plain, false},
		{"teacher cannot create", teacher, policy.ActionCreate, plain, false},
		{"admin deletes plain user", admin, policy.ActionDelete, plain, true},
		{"admin deletes teacher", admin, policy.ActionDelete, otherTeacher, true},
		{"admin cannot delete admin", admin, policy.ActionDelete, otherAdmin, false},
		{"teacher cannot delete", teacher, policy.ActionDelete, plain, false},
		{"admin force deletes user", admin, policy.ActionForceDelete, plain, true},
	}
	for _, tc := range cases {
		if got := g.Can(tc.actor, tc.action, policy.KindUser, tc.subject); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestAdminSelfExclusion(t *testing.T) {
	g := policy.NewDefaultGate()
	for _, id := range []uint{1, 77, 1000} {
		a := policy.Actor{ID: id, Role: policy.RoleAdmin}
		me := policy.UserSubject{ID: id, Role: policy.RoleAdmin}
		if g.Can(a, policy.ActionDelete, policy.KindUser, me) {
			t.Errorf("admin %d deleted self", id)
		}
		if g.Can(a, policy.ActionForceDelete, policy.KindUser, me) {
			t.Errorf("admin %d force deleted self", id)
		}
		if !g.Can(a, policy.ActionUpdate, policy.KindUser, me) {
			t.Errorf("admin %d could not update self", id)
		}
	}

	err := g.Authorize(admin, policy.ActionDelete, policy.KindUser, policy.UserSubject{ID: admin.ID, Role: policy.RoleAdmin})
	d, ok := policy.AsDenied(err)
	if !ok || d.CarveOut != policy.CarveOutDeleteSelf {
		t.Fatalf("expected delete-self carve-out, got %v", err)
	}
	if !errors.Is(err, policy.ErrUnauthorized) {
		t.Error("denial must match ErrUnauthorized")
	}
}

func TestAssignRole(t *testing.T) {
	g := policy.NewDefaultGate()
	cases := []struct {
		name    string
		subject policy.UserSubject
		want    bool
		carve   policy.CarveOut
	}{
		{"promote user to teacher", policy.UserSubject{ID: 5, Role: policy.RoleUser, NewRole: policy.RoleTeacher}, true, ""},
		{"demote teacher to user", policy.UserSubject{ID: 5, Role: policy.RoleTeacher, NewRole: policy.RoleUser}, true, ""},
		{"promote to admin", policy.UserSubject{ID: 5, Role: policy.RoleTeacher, NewRole: policy.RoleAdmin}, false, policy.CarveOutAssignAdminRole},
		{"demote admin", policy.UserSubject{ID: 6, Role: policy.RoleAdmin, NewRole: policy.RoleUser}, false, policy.CarveOutReassignAdmin},
	}
	for _, tc := range cases {
		err := g.Authorize(admin, policy.ActionAssignRole, policy.KindUser, tc.subject)
		if (err == nil) != tc.want {
			t.Errorf("%s: got %v", tc.name, err)
			continue
		}
		if d, ok := policy.AsDenied(err); ok && d.CarveOut != tc.carve {
			t.Errorf("%s: carve-out %q want %q", tc.name, d.CarveOut, tc.carve)
		}
	}
	if g.Can(teacher, policy.ActionAssignRole, policy.KindUser, policy.UserSubject{ID: 5, Role: policy.RoleUser, NewRole: policy.RoleTeacher}) {
		t.Error("teacher must not assign roles")
	}
}

func TestAdminCarveOutNeedsSubject(t *testing.T) {
	g := policy.NewDefaultGate()
	if g.Can(admin, policy.ActionDelete, policy.KindUser, nil) {
		t.Error("delete without a target must be refused")
	}
}

func TestDeniedCarriesRoles(t *testing.T) {
	g := policy.NewDefaultGate()
	err := g.Authorize(user, policy.ActionCreate, policy.KindPost, nil)
	d, ok := policy.AsDenied(err)
	if !ok {
		t.Fatalf("expected *Denied, got %v", err)
	}
	if d.Required != policy.RoleTeacher || d.Actual != policy.RoleUser {
		t.Errorf("unexpected roles required=%s actual=%s", d.Required, d.Actual)
	}
}

func TestUnknownKindAndAction(t *testing.T) {
	g := policy.NewDefaultGate()
	if err := g.Authorize(admin, policy.ActionView, "invoice", nil); err != policy.ErrNoPolicyDefined {
		t.Errorf("expected ErrNoPolicyDefined, got %v", err)
	}
	if g.Can(admin, "teleport", policy.KindPost, nil) {
		t.Error("unknown actions are denied even for admins")
	}
}

func TestAuthoredAndCatalogPolicies(t *testing.T) {
	g := policy.NewDefaultGate()
	mine := policy.OwnedSubject{OwnerID: teacher.ID}
	if !g.Can(teacher, policy.ActionUpdate, policy.KindPublication, mine) {
		t.Error("owner updates publication")
	}
	if g.Can(other, policy.ActionDelete, policy.KindProject, mine) {
		t.Error("non-owner must not delete project")
	}
	if g.Can(teacher, policy.ActionForceDelete, policy.KindAttachment, mine) {
		t.Error("only admins purge attachments")
	}
	if g.Can(teacher, policy.ActionCreate, policy.KindStaff, nil) {
		t.Error("staff is admin managed")
	}
	if !g.Can(guest, policy.ActionViewAny, policy.KindCourse, nil) {
		t.Error("courses are public")
	}
	if !g.Can(teacher, policy.ActionUpdate, policy.KindTeacher, policy.ProfileSubject{TeacherID: 20}) {
		t.Error("teacher edits own profile")
	}
	if g.Can(teacher, policy.ActionUpdate, policy.KindTeacher, policy.ProfileSubject{TeacherID: 30}) {
		t.Error("teacher must not edit another profile")
	}
	if !g.Can(guest, policy.ActionCreate, policy.KindContactMessage, nil) {
		t.Error("guests write contact messages")
	}
	if g.Can(teacher, policy.ActionViewAny, policy.KindContactMessage, nil) {
		t.Error("contact inbox is admin only")
	}
	if !g.Can(user, policy.ActionDelete, policy.KindComment, policy.OwnedSubject{OwnerID: user.ID}) {
		t.Error("users delete own comments")
	}
}

func TestCachedResolver(t *testing.T) {
	calls := 0
	inner := policy.ResolverFunc(func(_ context.Context, id uint) (policy.Actor, error) {
		calls++
		return policy.Actor{ID: id, Role: policy.RoleTeacher}, nil
	})
	r := policy.NewCachedResolver(inner, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), 5); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 inner call, got %d", calls)
	}
	r.Invalidate(5)
	_, _ = r.Resolve(context.Background(), 5)
	if calls != 2 {
		t.Errorf("expected refetch after invalidate, got %d calls", calls)
	}
	r.InvalidateAll()
	_, _ = r.Resolve(context.Background(), 5)
	if calls != 3 {
		t.Errorf("expected refetch after InvalidateAll, got %d calls", calls)
	}
}
