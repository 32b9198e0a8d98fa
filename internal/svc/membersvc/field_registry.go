package membersvc

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/mkrupp/memberfed/internal/domain"
	"github.com/mkrupp/memberfed/internal/repo/member"
	"github.com/mkrupp/memberfed/internal/util/coerce"
)

// ProfileField names a value the identity host keeps as a first-class
// profile property rather than a generic attribute.
type ProfileField string

const (
	ProfileEmail            ProfileField = "email"
	ProfileFirstName        ProfileField = "firstName"
	ProfileLastName         ProfileField = "lastName"
	ProfileCreatedTimestamp ProfileField = "createdTimestamp"
)

// fieldMapping exposes one canonical member field under up to three attribute
// names: its canonical name, the normalized alias and the storage column.
type fieldMapping struct {
	name    string
	alias   string
	column  string
	kind    coerce.Kind
	profile ProfileField

	get    func(m *domain.Member) any // nil for NULL
	set    func(m *domain.Member, value any)
	parse  func(text string) (any, error)
	format func(value any) string
}

// aliases returns the distinct attribute names of the field, canonical name first.
func (f *fieldMapping) aliases() []string {
	names := []string{f.name}

	for _, name := range []string{f.alias, f.column} {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	return names
}

// formatted returns the current textual value, or false for NULL.
func (f *fieldMapping) formatted(m *domain.Member) (string, bool) {
	value := f.get(m)
	if value == nil {
		return "", false
	}

	return f.format(value), true
}

func (f *fieldMapping) withProfile(profile ProfileField) *fieldMapping {
	f.profile = profile

	return f
}

func newField[T any](
	name, column string,
	kind coerce.Kind,
	ref func(*domain.Member) **T,
	parse func(string) (T, error),
	format func(T) string,
) *fieldMapping {
	return &fieldMapping{
		name:   name,
		alias:  NormalizeAlias(name),
		column: column,
		kind:   kind,
		get: func(m *domain.Member) any {
			if p := *ref(m); p != nil {
				return *p
			}

			return nil
		},
		set: func(m *domain.Member, value any) {
			if value == nil {
				*ref(m) = nil

				return
			}

			//nolint:forcetypeassert
			v := value.(T)
			*ref(m) = &v
		},
		parse: func(text string) (any, error) {
			v, err := parse(text)
			if err != nil {
				return nil, err
			}

			return v, nil
		},
		format: func(value any) string {
			//nolint:forcetypeassert
			return format(value.(T))
		},
	}
}

func stringField(name, column string, ref func(*domain.Member) **string) *fieldMapping {
	return newField(name, column, coerce.KindString, ref,
		func(text string) (string, error) { return text, nil },
		func(s string) string { return s },
	)
}

func intField(name, column string, ref func(*domain.Member) **int64) *fieldMapping {
	return newField(name, column, coerce.KindInt, ref, coerce.ParseInt, coerce.FormatInt)
}

func flagField(name, column string, ref func(*domain.Member) **int64) *fieldMapping {
	return newField(name, column, coerce.KindFlag, ref, coerce.ParseFlag, coerce.FormatInt)
}

func dateField(name, column string, ref func(*domain.Member) **time.Time) *fieldMapping {
	return newField(name, column, coerce.KindDate, ref, coerce.ParseDate, coerce.FormatDate)
}

// dateTimeField declares a date-time field. Epoch-normalized fields format as
// a millisecond count instead of ISO text.
func dateTimeField(name, column string, epoch bool, ref func(*domain.Member) **time.Time) *fieldMapping {
	format := coerce.FormatDateTime
	if epoch {
		format = coerce.FormatEpochMillis
	}

	return newField(name, column, coerce.KindDateTime, ref, coerce.ParseDateTime, format)
}

type fieldRegistry struct {
	fields []*fieldMapping
	byName map[string]*fieldMapping
}

// newFieldRegistry indexes every alias of every field. It panics if a
// canonical name repeats or two fields claim the same attribute name.
func newFieldRegistry(fields ...*fieldMapping) *fieldRegistry {
	r := &fieldRegistry{
		fields: fields,
		byName: make(map[string]*fieldMapping),
	}

	for _, f := range fields {
		for _, name := range f.aliases() {
			if other, ok := r.byName[name]; ok {
				panic(fmt.Sprintf("attribute %q claimed by %q and %q", name, other.name, f.name))
			}

			r.byName[name] = f
		}
	}

	return r
}

func (r *fieldRegistry) lookup(name string) (*fieldMapping, bool) {
	f, ok := r.byName[name]

	return f, ok
}

// The attribute vocabulary below is referenced by identity hosts and must stay stable.
//
//nolint:gochecknoglobals
var registry = newFieldRegistry(
	stringField("username", member.ColumnUsername, func(m *domain.Member) **string { return &m.Username }),
	stringField("email", member.ColumnEmail, func(m *domain.Member) **string { return &m.Email }).
		withProfile(ProfileEmail),
	stringField("firstName", member.ColumnFirstName, func(m *domain.Member) **string { return &m.FirstName }).
		withProfile(ProfileFirstName),
	stringField("lastName", member.ColumnLastName, func(m *domain.Member) **string { return &m.LastName }).
		withProfile(ProfileLastName),
	stringField("ldapLogin", member.ColumnLDAPLogin, func(m *domain.Member) **string { return &m.LDAPLogin }),
	stringField("general", member.ColumnComments, func(m *domain.Member) **string { return &m.Comments }),
	dateField("departureDate", member.ColumnDepartureDate, func(m *domain.Member) **time.Time { return &m.DepartureDate }),
	flagField("modeAssociation", member.ColumnModeAssociation, func(m *domain.Member) **int64 { return &m.ModeAssociation }),
	stringField("accessToken", member.ColumnAccessToken, func(m *domain.Member) **string { return &m.AccessToken }),
	stringField("subnet", member.ColumnSubnet, func(m *domain.Member) **string { return &m.Subnet }),
	stringField("ip", member.ColumnIP, func(m *domain.Member) **string { return &m.IP }),
	intField("chambreId", member.ColumnRoomID, func(m *domain.Member) **int64 { return &m.RoomID }),
	dateTimeField("createdAt", member.ColumnCreatedAt, true, func(m *domain.Member) **time.Time { return &m.CreatedAt }).
		withProfile(ProfileCreatedTimestamp),
	dateTimeField("updatedAt", member.ColumnUpdatedAt, true, func(m *domain.Member) **time.Time { return &m.UpdatedAt }),
	flagField("edminet", member.ColumnEdminet, func(m *domain.Member) **int64 { return &m.Edminet }),
	flagField("isNaina", member.ColumnIsNaina, func(m *domain.Member) **int64 { return &m.IsNaina }),
	flagField("mailingList", member.ColumnMailingList, func(m *domain.Member) **int64 { return &m.MailingList }),
	intField("mailMembership", member.ColumnMailMembership, func(m *domain.Member) **int64 { return &m.MailMembership }),
	dateTimeField("dateSignedHosting", member.ColumnDateSignedHosting, false,
		func(m *domain.Member) **time.Time { return &m.DateSignedHosting }),
	dateTimeField("dateSignedAdhesion", member.ColumnDateSignedAdhesion, false,
		func(m *domain.Member) **time.Time { return &m.DateSignedAdhesion }),
)

// NormalizeAlias lower-cases a camelCase name and inserts an underscore before
// each run of uppercase letters: "dateSignedHosting" becomes "date_signed_hosting".
func NormalizeAlias(name string) string {
	var (
		b         strings.Builder
		prevUpper bool
	)

	for i, r := range name {
		upper := unicode.IsUpper(r)
		if upper && !prevUpper && i > 0 {
			b.WriteByte('_')
		}

		b.WriteRune(unicode.ToLower(r))
		prevUpper = upper
	}

	return b.String()
}

// Aliases returns every attribute name that addresses the same member field
// as name, canonical name first, or nil if name is not a mapped field.
func Aliases(name string) []string {
	f, ok := registry.lookup(name)
	if !ok {
		return nil
	}

	return f.aliases()
}

// IsMapped reports whether name, under any of its aliases, is backed by a column.
func IsMapped(name string) bool {
	_, ok := registry.lookup(name)

	return ok
}

// AttributeNames returns the canonical names of all mapped fields.
func AttributeNames() []string {
	names := make([]string, 0, len(registry.fields))
	for _, f := range registry.fields {
		names = append(names, f.name)
	}

	return names
}
