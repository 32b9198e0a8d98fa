package member

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mkrupp/memberfed/internal/domain"
	"github.com/mkrupp/memberfed/internal/util/coerce"
)

// ErrTypeMismatch is wrapped by DecodeError when a value has an unexpected type.
var ErrTypeMismatch = errors.New("type mismatch")

// Column names of the member table.
const (
	ColumnID                 = "id"
	ColumnLastName           = "nom"
	ColumnFirstName          = "prenom"
	ColumnEmail              = "mail"
	ColumnUsername           = "login"
	ColumnPassword           = "password"
	ColumnDepartureDate      = "date_de_depart"
	ColumnComments           = "commentaires"
	ColumnModeAssociation    = "mode_association"
	ColumnAccessToken        = "access_token"
	ColumnSubnet             = "subnet"
	ColumnIP                 = "ip"
	ColumnRoomID             = "chambre_id"
	ColumnCreatedAt          = "created_at"
	ColumnUpdatedAt          = "updated_at"
	ColumnEdminet            = "edminet"
	ColumnIsNaina            = "is_naina"
	ColumnMailingList        = "mailinglist"
	ColumnMailMembership     = "mail_membership"
	ColumnLDAPLogin          = "ldap_login"
	ColumnDateSignedHosting  = "datesignedhosting"
	ColumnDateSignedAdhesion = "datesignedadhesion"
)

// DecodeError reports a column whose value could not be converted.
// It never aborts decoding of the other columns.
type DecodeError struct {
	Column string
	Value  any
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode column %q (%T): %v", e.Column, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type columnDecoder struct {
	column string
	decode func(m *domain.Member, value any) error
}

//nolint:gochecknoglobals
var columnDecoders = []columnDecoder{
	{column: ColumnID, decode: decodeID},
	stringColumn(ColumnLastName, func(m *domain.Member) **string { return &m.LastName }),
	stringColumn(ColumnFirstName, func(m *domain.Member) **string { return &m.FirstName }),
	stringColumn(ColumnEmail, func(m *domain.Member) **string { return &m.Email }),
	stringColumn(ColumnUsername, func(m *domain.Member) **string { return &m.Username }),
	timeColumn(ColumnDepartureDate, coerce.KindDate, func(m *domain.Member) **time.Time { return &m.DepartureDate }),
	stringColumn(ColumnComments, func(m *domain.Member) **string { return &m.Comments }),
	intColumn(ColumnModeAssociation, coerce.KindFlag, func(m *domain.Member) **int64 { return &m.ModeAssociation }),
	stringColumn(ColumnAccessToken, func(m *domain.Member) **string { return &m.AccessToken }),
	stringColumn(ColumnSubnet, func(m *domain.Member) **string { return &m.Subnet }),
	stringColumn(ColumnIP, func(m *domain.Member) **string { return &m.IP }),
	intColumn(ColumnRoomID, coerce.KindInt, func(m *domain.Member) **int64 { return &m.RoomID }),
	timeColumn(ColumnCreatedAt, coerce.KindDateTime, func(m *domain.Member) **time.Time { return &m.CreatedAt }),
	timeColumn(ColumnUpdatedAt, coerce.KindDateTime, func(m *domain.Member) **time.Time { return &m.UpdatedAt }),
	intColumn(ColumnEdminet, coerce.KindFlag, func(m *domain.Member) **int64 { return &m.Edminet }),
	intColumn(ColumnIsNaina, coerce.KindFlag, func(m *domain.Member) **int64 { return &m.IsNaina }),
	intColumn(ColumnMailingList, coerce.KindFlag, func(m *domain.Member) **int64 { return &m.MailingList }),
	intColumn(ColumnMailMembership, coerce.KindInt, func(m *domain.Member) **int64 { return &m.MailMembership }),
	stringColumn(ColumnLDAPLogin, func(m *domain.Member) **string { return &m.LDAPLogin }),
	timeColumn(ColumnDateSignedHosting, coerce.KindDateTime, func(m *domain.Member) **time.Time { return &m.DateSignedHosting }),
	timeColumn(ColumnDateSignedAdhesion, coerce.KindDateTime, func(m *domain.Member) **time.Time { return &m.DateSignedAdhesion }),
}

// Columns returns the decodable column names, in table order.
func Columns() []string {
	columns := make([]string, 0, len(columnDecoders))
	for _, d := range columnDecoders {
		columns = append(columns, d.column)
	}

	return columns
}

// Decode builds a Member from one result row keyed by column label.
// Labels match case-insensitively. Columns missing from the row leave their
// field nil. Conversion failures are returned joined as *DecodeError values
// alongside the partially decoded member, which is always non-nil.
func Decode(row map[string]any) (*domain.Member, error) {
	values := make(map[string]any, len(row))
	for label, value := range row {
		values[strings.ToLower(label)] = value
	}

	var (
		member domain.Member
		errs   []error
	)

	for _, d := range columnDecoders {
		value, ok := values[d.column]
		if !ok {
			continue
		}

		if err := d.decode(&member, value); err != nil {
			errs = append(errs, &DecodeError{Column: d.column, Value: value, Err: err})
		}
	}

	return &member, errors.Join(errs...)
}

func decodeID(m *domain.Member, value any) error {
	id, err := toInt(value, coerce.KindInt)
	if err != nil {
		return err
	}

	if id != nil {
		m.ID = *id
	}

	return nil
}

func stringColumn(column string, ref func(*domain.Member) **string) columnDecoder {
	return columnDecoder{column: column, decode: func(m *domain.Member, value any) error {
		s, err := toString(value)
		if err != nil {
			return err
		}

		*ref(m) = s

		return nil
	}}
}

func intColumn(column string, kind coerce.Kind, ref func(*domain.Member) **int64) columnDecoder {
	return columnDecoder{column: column, decode: func(m *domain.Member, value any) error {
		n, err := toInt(value, kind)
		if err != nil {
			return err
		}

		*ref(m) = n

		return nil
	}}
}

func timeColumn(column string, kind coerce.Kind, ref func(*domain.Member) **time.Time) columnDecoder {
	return columnDecoder{column: column, decode: func(m *domain.Member, value any) error {
		t, err := toTime(value, kind)
		if err != nil {
			return err
		}

		*ref(m) = t

		return nil
	}}
}

func toString(value any) (*string, error) {
	var s string

	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		s = coerce.FormatInt(v)
	default:
		return nil, ErrTypeMismatch
	}

	return &s, nil
}

//nolint:cyclop
func toInt(value any, kind coerce.Kind) (*int64, error) {
	var (
		n   int64
		err error
	)

	switch v := value.(type) {
	case nil:
		return nil, nil
	case int64:
		n = v
	case int32:
		n = int64(v)
	case int:
		n = int64(v)
	case bool:
		if v {
			n = 1
		}
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return nil, ErrTypeMismatch
		}

		n = int64(v)
	case []byte:
		n, err = coerce.ParseInt(string(v))
	case string:
		n, err = coerce.ParseInt(v)
	default:
		return nil, ErrTypeMismatch
	}

	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if kind == coerce.KindFlag && (n < math.MinInt8 || n > math.MaxInt8) {
		return nil, coerce.ErrOutOfRange
	}

	return &n, nil
}

func toTime(value any, kind coerce.Kind) (*time.Time, error) {
	var (
		t   time.Time
		err error
	)

	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = coerce.WallClockUTC(v)
	case []byte:
		t, err = coerce.ParseDateTime(string(v))
	case string:
		t, err = coerce.ParseDateTime(v)
	case int64:
		t = time.UnixMilli(v).UTC()
	default:
		return nil, ErrTypeMismatch
	}

	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if kind == coerce.KindDate {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	return &t, nil
}
