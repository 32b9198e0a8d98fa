package member_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/mkrupp/memberfed/internal/repo/member"
	"github.com/mkrupp/memberfed/internal/util/coerce"
)

func TestDecode_FullRow(t *testing.T) {
	t.Parallel()

	row := map[string]any{
		"id":                 int64(7),
		"login":              "alice",
		"mail":               []byte("alice@example.org"),
		"prenom":             "Alice",
		"nom":                "Martin",
		"created_at":         "2025-02-03 04:05:00",
		"updated_at":         int64(1704164645000),
		"date_de_depart":     "2025-07-01",
		"commentaires":       "quiet floor",
		"mode_association":   int64(1),
		"access_token":       "tok",
		"subnet":             "10.0.3.0/24",
		"ip":                 []byte("10.0.3.12"),
		"chambre_id":         int64(312),
		"edminet":            int64(0),
		"is_naina":           int64(1),
		"mailinglist":        int64(1),
		"mail_membership":    int64(2),
		"ldap_login":         "amartin",
		"datesignedhosting":  "2024-01-02 03:04:05",
		"datesignedadhesion": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	for _, column := range Columns() {
		require.Contains(t, row, column, "row fixture must cover every decodable column")
	}

	m, err := Decode(row)
	require.NoError(t, err)

	v := reflect.ValueOf(*m)
	for i := range v.NumField() {
		if field := v.Field(i); field.Kind() == reflect.Pointer {
			assert.False(t, field.IsNil(), "field %s is nil", v.Type().Field(i).Name)
		}
	}

	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, "alice", *m.Username)
	assert.Equal(t, "alice@example.org", *m.Email)
	assert.Equal(t, "Alice", *m.FirstName)
	assert.Equal(t, "Martin", *m.LastName)
	assert.Equal(t, int64(1738555500000), m.CreatedAt.UnixMilli())
	assert.Equal(t, int64(1704164645000), m.UpdatedAt.UnixMilli())
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *m.DepartureDate)
	assert.Equal(t, "quiet floor", *m.Comments)
	assert.Equal(t, int64(1), *m.ModeAssociation)
	assert.Equal(t, "tok", *m.AccessToken)
	assert.Equal(t, "10.0.3.0/24", *m.Subnet)
	assert.Equal(t, "10.0.3.12", *m.IP)
	assert.Equal(t, int64(312), *m.RoomID)
	assert.Equal(t, int64(0), *m.Edminet)
	assert.Equal(t, int64(1), *m.IsNaina)
	assert.Equal(t, int64(1), *m.MailingList)
	assert.Equal(t, int64(2), *m.MailMembership)
	assert.Equal(t, "amartin", *m.LDAPLogin)
	assert.Equal(t, int64(1704164645000), m.DateSignedHosting.UnixMilli())
	assert.Equal(t, int64(1704164645000), m.DateSignedAdhesion.UnixMilli())
}

func TestDecode_CreatedAtText(t *testing.T) {
	t.Parallel()

	m, err := Decode(map[string]any{"login": "jdoe", "created_at": "2024-01-02 03:04:05"})
	require.NoError(t, err)

	assert.Equal(t, "jdoe", *m.Username)
	require.NotNil(t, m.CreatedAt)
	assert.Equal(t, "1704164645000", coerce.FormatEpochMillis(*m.CreatedAt))
}

func TestDecode_MissingColumns(t *testing.T) {
	t.Parallel()

	m, err := Decode(map[string]any{"id": int64(3), "login": "bob"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), m.ID)
	assert.Equal(t, "bob", *m.Username)
	assert.Nil(t, m.Email)
	assert.Nil(t, m.CreatedAt)
	assert.Nil(t, m.Edminet)
}

func TestDecode_NullValues(t *testing.T) {
	t.Parallel()

	m, err := Decode(map[string]any{"id": int64(1), "mail": nil, "created_at": nil, "edminet": nil})
	require.NoError(t, err)

	assert.Nil(t, m.Email)
	assert.Nil(t, m.CreatedAt)
	assert.Nil(t, m.Edminet)
}

func TestDecode_LabelsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	m, err := Decode(map[string]any{"ID": int64(4), "Login": "carol", "DATESIGNEDHOSTING": "2024-01-02T03:04:05Z"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), m.ID)
	assert.Equal(t, "carol", *m.Username)
	assert.Equal(t, int64(1704164645000), m.DateSignedHosting.UnixMilli())
}

func TestDecode_PartialFailure(t *testing.T) {
	t.Parallel()

	row := map[string]any{
		"id":               int64(5),
		"login":            "dave",
		"mode_association": "not a number",
		"edminet":          int64(300),
		"created_at":       3.5,
	}

	m, err := Decode(row)
	require.Error(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "dave", *m.Username)
	assert.Nil(t, m.ModeAssociation)
	assert.Nil(t, m.Edminet)
	assert.Nil(t, m.CreatedAt)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)

	assert.ErrorIs(t, err, coerce.ErrOutOfRange)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "mode_association")
	assert.Contains(t, err.Error(), "edminet")
	assert.Contains(t, err.Error(), "created_at")
}

func TestDecode_TimeKeepsWallClock(t *testing.T) {
	t.Parallel()

	paris := time.FixedZone("CET", 3600)

	m, err := Decode(map[string]any{
		"id":             int64(1),
		"created_at":     time.Date(2025, 2, 3, 4, 5, 0, 0, paris),
		"date_de_depart": time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 2, 3, 4, 5, 0, 0, time.UTC), *m.CreatedAt)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *m.DepartureDate)
}

func TestColumns(t *testing.T) {
	t.Parallel()

	columns := Columns()

	assert.Equal(t, ColumnID, columns[0])
	assert.Contains(t, columns, ColumnDateSignedAdhesion)
	assert.NotContains(t, columns, ColumnPassword)
}
