package policy

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Gate.Authorize.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNoPolicyDefined = errors.New("no policy defined for resource")
)

// CarveOut names a case where even an admin is refused.
type CarveOut string

const (
	CarveOutDeleteSelf       CarveOut = "admin cannot delete own account"
	CarveOutForceDeleteSelf  CarveOut = "admin cannot force delete own account"
	CarveOutDeleteAdmin      CarveOut = "admin accounts cannot be deleted"
	CarveOutUpdateOtherAdmin CarveOut = "admin cannot update another admin"
	CarveOutAssignAdminRole  CarveOut = "the admin role cannot be assigned"
	CarveOutReassignAdmin    CarveOut = "an admin's role cannot be changed"
	CarveOutUnknownSubject   CarveOut = "target account could not be identified"
)

// Denied is returned when the gate refuses an action. It matches ErrUnauthorized with errors.Is.
type Denied struct {
	Kind     Kind
	Action   Action
	Required Role
	Actual   Role
	CarveOut CarveOut
}

func (d *Denied) Error() string {
	if d.CarveOut != "" {
		return fmt.Sprintf("%s %s denied: %s", d.Action, d.Kind, d.CarveOut)
	}
	return fmt.Sprintf("%s %s denied for role %s (requires %s)", d.Action, d.Kind, d.Actual, d.Required)
}

// Is lets errors.Is(err, ErrUnauthorized) match.
func (d *Denied) Is(target error) bool {
	return target == ErrUnauthorized
}

// AsDenied extracts the denial details from err.
func AsDenied(err error) (*Denied, bool) {
	var d *Denied
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
