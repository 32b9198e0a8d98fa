package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMemberID is wrapped by IdentifierFormatError.
var ErrInvalidMemberID = errors.New("invalid member id")

const memberIDPrefix = "f"

// IdentifierFormatError reports a host-supplied identifier that is not in the
// external "f:<component>:<local>" encoding nor a bare local integer.
type IdentifierFormatError struct {
	ID string
}

func (e *IdentifierFormatError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidMemberID, e.ID)
}

func (e *IdentifierFormatError) Unwrap() error {
	return ErrInvalidMemberID
}

// MemberID is the opaque identifier handed to the identity host. It binds the
// local table key to the component (federation provider instance) that owns it.
type MemberID struct {
	Component string
	Local     int64
}

// NewMemberID creates a MemberID for the given component and local key.
func NewMemberID(component string, local int64) MemberID {
	return MemberID{Component: component, Local: local}
}

// String returns the external encoding, "f:<component>:<local>".
func (id MemberID) String() string {
	return memberIDPrefix + ":" + id.Component + ":" + strconv.FormatInt(id.Local, 10)
}

// ParseMemberID decodes an external identifier. Bare digits are accepted as a
// local key without a component.
func ParseMemberID(s string) (MemberID, error) {
	if local, err := strconv.ParseInt(s, 10, 64); err == nil {
		return MemberID{Local: local}, nil
	}

	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != memberIDPrefix {
		return MemberID{}, &IdentifierFormatError{ID: s}
	}

	local, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return MemberID{}, &IdentifierFormatError{ID: s}
	}

	return MemberID{Component: parts[1], Local: local}, nil
}
