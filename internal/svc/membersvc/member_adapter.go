package membersvc

import (
	"context"
	"time"

	"github.com/mkrupp/memberfed/internal/domain"
	context_ "github.com/mkrupp/memberfed/internal/infra/context"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	"github.com/mkrupp/memberfed/internal/util/coerce"
)

// ColumnWriter persists one column of one member row.
type ColumnWriter interface {
	UpdateColumn(ctx context.Context, id int64, column string, value any) error
}

// MemberAdapter presents one Member to the identity host. It keeps the
// canonical record, the storage row and the host's attribute store in step:
// every mapped field is visible under all of its aliases with the same value.
//
// An adapter is bound to one request and is not safe for concurrent use.
type MemberAdapter struct {
	id      domain.MemberID
	member  *domain.Member
	store   AttributeStore
	writer  ColumnWriter
	metrics *Metrics
	log     logging.Logger
}

// NewMemberAdapter wraps m and primes store with every non-null mapped field
// and the profile values.
func NewMemberAdapter(
	ctx context.Context,
	id domain.MemberID,
	m *domain.Member,
	store AttributeStore,
	writer ColumnWriter,
	metrics *Metrics,
	log logging.Logger,
) *MemberAdapter {
	a := &MemberAdapter{
		id:      id,
		member:  m,
		store:   store,
		writer:  writer,
		metrics: metrics,
		log:     log,
	}

	for _, f := range registry.fields {
		if text, ok := f.formatted(m); ok {
			a.publish(ctx, f, &text)
		}
	}

	return a
}

// ID returns the external identifier.
func (a *MemberAdapter) ID() string {
	return a.id.String()
}

// LocalID returns the table key.
func (a *MemberAdapter) LocalID() int64 {
	return a.member.ID
}

func (a *MemberAdapter) Username() string {
	return domain.StringValue(a.member.Username)
}

func (a *MemberAdapter) SetUsername(ctx context.Context, username string) bool {
	return a.SetSingleAttribute(ctx, "username", username)
}

func (a *MemberAdapter) Email() string {
	return domain.StringValue(a.member.Email)
}

func (a *MemberAdapter) SetEmail(ctx context.Context, email string) bool {
	return a.SetSingleAttribute(ctx, "email", email)
}

func (a *MemberAdapter) FirstName() string {
	return domain.StringValue(a.member.FirstName)
}

func (a *MemberAdapter) SetFirstName(ctx context.Context, firstName string) bool {
	return a.SetSingleAttribute(ctx, "firstName", firstName)
}

func (a *MemberAdapter) LastName() string {
	return domain.StringValue(a.member.LastName)
}

func (a *MemberAdapter) SetLastName(ctx context.Context, lastName string) bool {
	return a.SetSingleAttribute(ctx, "lastName", lastName)
}

// EmailVerified always reports true: addresses are verified at enrolment.
func (a *MemberAdapter) EmailVerified() bool {
	return true
}

// CreatedTimestamp returns the creation instant as epoch milliseconds.
func (a *MemberAdapter) CreatedTimestamp() (int64, bool) {
	if a.member.CreatedAt == nil {
		return 0, false
	}

	return a.member.CreatedAt.UnixMilli(), true
}

// SetCreatedTimestamp sets the creation instant from epoch milliseconds; nil clears it.
func (a *MemberAdapter) SetCreatedTimestamp(ctx context.Context, millis *int64) bool {
	f, _ := registry.lookup("createdAt")

	if millis == nil {
		return a.apply(ctx, f, nil)
	}

	return a.apply(ctx, f, time.UnixMilli(*millis).UTC())
}

// SetCreatedTimestampText sets the creation instant from any accepted date-time text.
func (a *MemberAdapter) SetCreatedTimestampText(ctx context.Context, text string) bool {
	return a.SetSingleAttribute(ctx, "createdAt", text)
}

// Attribute returns the values of one attribute. Mapped names always read
// the canonical field.
func (a *MemberAdapter) Attribute(ctx context.Context, name string) []string {
	f, ok := registry.lookup(name)
	if !ok {
		return a.store.Attribute(ctx, name)
	}

	if text, ok := f.formatted(a.member); ok {
		return []string{text}
	}

	return nil
}

// FirstAttribute returns the first value of an attribute.
func (a *MemberAdapter) FirstAttribute(ctx context.Context, name string) (string, bool) {
	values := a.Attribute(ctx, name)
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

// Attributes returns the generic attributes overlaid with every non-null
// mapped field under each of its aliases.
func (a *MemberAdapter) Attributes(ctx context.Context) map[string][]string {
	attrs := a.store.Attributes(ctx)

	for _, f := range registry.fields {
		text, ok := f.formatted(a.member)
		if !ok {
			continue
		}

		for _, name := range f.aliases() {
			attrs[name] = []string{text}
		}
	}

	return attrs
}

// SetSingleAttribute writes one attribute value. For mapped names the text is
// parsed, applied to the canonical field and persisted before the aliases are
// refreshed. It reports false, leaving every view unchanged, when the text does
// not parse or the storage write fails.
func (a *MemberAdapter) SetSingleAttribute(ctx context.Context, name, text string) bool {
	f, ok := registry.lookup(name)
	if !ok {
		a.store.SetAttribute(ctx, name, []string{text})

		return true
	}

	value, err := f.parse(text)
	if err != nil {
		a.metrics.attributeWrite("rejected")
		a.logger(ctx).WarnContext(ctx, "attribute value rejected", "attribute", name, "error", err)

		return false
	}

	return a.apply(ctx, f, value)
}

// SetAttribute writes a multi-valued attribute. Mapped names take the first
// value; an empty list removes the attribute.
func (a *MemberAdapter) SetAttribute(ctx context.Context, name string, values []string) bool {
	if len(values) == 0 {
		return a.RemoveAttribute(ctx, name)
	}

	if _, ok := registry.lookup(name); ok {
		return a.SetSingleAttribute(ctx, name, values[0])
	}

	a.store.SetAttribute(ctx, name, values)

	return true
}

// RemoveAttribute clears an attribute. For mapped names the column is set to NULL.
func (a *MemberAdapter) RemoveAttribute(ctx context.Context, name string) bool {
	f, ok := registry.lookup(name)
	if !ok {
		a.store.RemoveAttribute(ctx, name)

		return true
	}

	return a.apply(ctx, f, nil)
}

func (a *MemberAdapter) apply(ctx context.Context, f *fieldMapping, value any) bool {
	log := a.logger(ctx).With("attribute", f.name, "column", f.column)
	previous := f.get(a.member)

	f.set(a.member, value)

	if err := a.writer.UpdateColumn(ctx, a.member.ID, f.column, coerce.Bind(f.kind, value)); err != nil {
		f.set(a.member, previous)
		a.metrics.attributeWrite("failed")
		log.ErrorContext(ctx, "attribute write failed", "error", err)

		return false
	}

	var text *string

	if value != nil {
		formatted := f.format(value)
		text = &formatted
	}

	a.publish(ctx, f, text)
	a.metrics.attributeWrite("applied")
	log.DebugContext(ctx, "attribute written")

	return true
}

// publish mirrors one field into the attribute store under all aliases and,
// for profile fields, into the profile. nil removes it.
func (a *MemberAdapter) publish(ctx context.Context, f *fieldMapping, text *string) {
	for _, name := range f.aliases() {
		if text == nil {
			a.store.RemoveAttribute(ctx, name)
		} else {
			a.store.SetAttribute(ctx, name, []string{*text})
		}
	}

	if f.profile != "" {
		a.store.SetProfile(ctx, f.profile, text)
	}
}

func (a *MemberAdapter) logger(ctx context.Context) logging.Logger {
	if _, ok := context_.MemberIDFromContext(ctx); ok {
		return a.log
	}

	return a.log.With("member", a.id.String())
}
