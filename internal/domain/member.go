package domain

import (
	"errors"
	"time"
)

var (
	// ErrMemberNotFound is returned when looking up a non-existent member.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberConflict is returned when a write violates a uniqueness constraint.
	ErrMemberConflict = errors.New("member conflict")
	// ErrInvalidCredentials is returned when the provided secret does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnsupportedCredentialType is returned for anything but password credentials.
	ErrUnsupportedCredentialType = errors.New("unsupported credential type")
)

// Member is the canonical in-memory record of one row of the member table.
// Every column except ID is nullable; a nil pointer means NULL or absent column.
// A Member is built fresh for each request and never cached.
type Member struct {
	ID int64 // Local integer key, immutable once assigned

	Username  *string // login
	Email     *string // mail
	FirstName *string // prenom
	LastName  *string // nom

	CreatedAt *time.Time // created_at, UTC
	UpdatedAt *time.Time // updated_at, UTC

	DepartureDate      *time.Time // date_de_depart, date only
	Comments           *string    // commentaires
	ModeAssociation    *int64     // mode_association, flag
	AccessToken        *string
	Subnet             *string
	IP                 *string
	RoomID             *int64 // chambre_id
	Edminet            *int64 // flag
	IsNaina            *int64 // flag
	MailingList        *int64 // mailinglist, flag
	MailMembership     *int64
	LDAPLogin          *string
	DateSignedHosting  *time.Time
	DateSignedAdhesion *time.Time
}

// Credential is a secret presented by the identity host.
type Credential struct {
	Type  string
	Value string
}

// CredentialTypePassword is the only credential type members carry.
const CredentialTypePassword = "password"

// StringValue returns the dereferenced value or "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
