package membersvc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/memberfed/internal/domain"
	"github.com/mkrupp/memberfed/internal/infra/credential"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	"github.com/mkrupp/memberfed/internal/repo/member"
	. "github.com/mkrupp/memberfed/internal/svc/membersvc"
)

const schema = `CREATE TABLE adherents (
	id INTEGER PRIMARY KEY,
	nom TEXT,
	prenom TEXT,
	mail TEXT,
	login TEXT UNIQUE,
	password TEXT,
	date_de_depart DATE,
	commentaires TEXT,
	mode_association INTEGER,
	access_token TEXT,
	subnet TEXT,
	ip TEXT,
	chambre_id INTEGER,
	created_at DATETIME,
	updated_at DATETIME,
	edminet INTEGER,
	is_naina INTEGER,
	mailinglist INTEGER,
	mail_membership INTEGER,
	ldap_login TEXT,
	datesignedhosting DATETIME,
	datesignedadhesion DATETIME
)`

// The digest of "password".
const passwordDigest = "8846f7eaee8fb117ad06bdd830b7586c"

const fixtures = `INSERT INTO adherents (id, nom, prenom, mail, login, password, created_at, chambre_id) VALUES
	(1, 'Martin', 'Alice', 'alice@example.org', 'alice', 'secret', '2025-02-03 04:05:00', 312),
	(2, 'Durand', 'Bob', 'bob@example.org', 'bob', '` + passwordDigest + `', NULL, NULL),
	(3, 'Petit', 'Malik', 'malik@example.org', 'malik', '', NULL, NULL)`

func TestMain(m *testing.M) {
	if err := credential.Init(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func newTestService(t *testing.T, cfg MemberServiceConfig) (*MemberService, *sqlx.DB) {
	t.Helper()

	db, err := sqlx.Open(member.DriverSQLite, filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	db.MustExec(schema)
	db.MustExec(fixtures)

	repo, err := member.NewSQLRepositoryFromDB(db, "adherents")
	require.NoError(t, err)

	return &MemberService{
		Config:  cfg,
		Repo:    repo,
		Log:     logging.NewNopLogger(),
		Metrics: NewMetrics(prometheus.NewRegistry(), cfg.ComponentID),
		NewStore: func(context.Context, domain.MemberID) AttributeStore {
			return NewMemoryAttributeStore()
		},
	}, db
}

func defaultConfig() MemberServiceConfig {
	return MemberServiceConfig{ComponentID: "memberfed", RehashOnVerify: true, MaxResults: 500}
}

func storedSecret(t *testing.T, db *sqlx.DB, id int64) string {
	t.Helper()

	var secret string
	require.NoError(t, db.Get(&secret, "SELECT password FROM adherents WHERE id = ?", id))

	return secret
}

func TestMemberByID(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	tests := []struct {
		id       string
		wantOK   bool
		wantUser string
	}{
		{id: "f:memberfed:1", wantOK: true, wantUser: "alice"},
		{id: "2", wantOK: true, wantUser: "bob"},
		{id: "malik", wantOK: true, wantUser: "malik"},
		{id: "f:other:1", wantOK: false},
		{id: "f:memberfed:99", wantOK: false},
		{id: "nobody", wantOK: false},
	}

	for _, tt := range tests {
		a, ok := svc.MemberByID(ctx, tt.id)
		require.Equal(t, tt.wantOK, ok, tt.id)

		if ok {
			assert.Equal(t, tt.wantUser, a.Username(), tt.id)
		}
	}
}

func TestMemberByID_ExposesColumns(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	a, ok := svc.MemberByID(ctx, "f:memberfed:1")
	require.True(t, ok)

	assert.Equal(t, "f:memberfed:1", a.ID())
	assert.Equal(t, "alice@example.org", a.Email())

	created, ok := a.CreatedTimestamp()
	require.True(t, ok)
	assert.Equal(t, int64(1738555500000), created)

	attrs := a.Attributes(ctx)
	assert.Equal(t, []string{"alice"}, attrs["login"])
	assert.Equal(t, []string{"312"}, attrs["chambre_id"])
	assert.Equal(t, []string{"1738555500000"}, attrs["created_at"])
}

func TestMemberByEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())

	a, ok := svc.MemberByEmail(context.Background(), "bob@example.org")
	require.True(t, ok)
	assert.Equal(t, "f:memberfed:2", a.ID())

	_, ok = svc.MemberByEmail(context.Background(), "BOB@example.org")
	assert.False(t, ok)
}

func TestValidCredential(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, defaultConfig())
	ctx := context.Background()

	assert.True(t, svc.ValidCredential(ctx, "f:memberfed:2", domain.Credential{Type: "password", Value: "password"}))
	assert.False(t, svc.ValidCredential(ctx, "f:memberfed:2", domain.Credential{Type: "password", Value: "Password"}))
	assert.False(t, svc.ValidCredential(ctx, "f:memberfed:2", domain.Credential{Type: "otp", Value: "password"}))
	assert.False(t, svc.ValidCredential(ctx, "f:memberfed:3", domain.Credential{Type: "password", Value: ""}))
	assert.False(t, svc.ValidCredential(ctx, "f:memberfed:99", domain.Credential{Type: "password", Value: "x"}))

	assert.InDelta(t, 1, testutil.ToFloat64(svc.Metrics.Verifications.WithLabelValues("valid")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(svc.Metrics.Verifications.WithLabelValues("invalid")), 0)

	assert.Equal(t, passwordDigest, storedSecret(t, db, 2))
}

func TestValidCredential_RehashesPlaintext(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, defaultConfig())
	ctx := context.Background()

	require.True(t, svc.ValidCredential(ctx, "alice", domain.Credential{Type: "password", Value: "secret"}))

	digest, err := credential.Digest("secret")
	require.NoError(t, err)
	assert.Equal(t, digest, storedSecret(t, db, 1))

	assert.True(t, svc.ValidCredential(ctx, "f:memberfed:1", domain.Credential{Type: "password", Value: "secret"}))
	assert.InDelta(t, 1, testutil.ToFloat64(svc.Metrics.Rehashes.WithLabelValues("applied")), 0)
}

func TestValidCredential_KeepsPlaintextWithoutRehash(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.RehashOnVerify = false

	svc, db := newTestService(t, cfg)

	require.True(t, svc.ValidCredential(context.Background(), "1", domain.Credential{Type: "password", Value: "secret"}))
	assert.Equal(t, "secret", storedSecret(t, db, 1))
}

func TestIsConfiguredFor(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	assert.True(t, svc.IsConfiguredFor(ctx, "f:memberfed:1", "password"))
	assert.False(t, svc.IsConfiguredFor(ctx, "f:memberfed:3", "password"))
	assert.False(t, svc.IsConfiguredFor(ctx, "f:memberfed:1", "otp"))
	assert.Empty(t, svc.DisableableCredentialTypes(ctx, "f:memberfed:1"))
}

func TestUpdateCredential(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, defaultConfig())
	ctx := context.Background()

	require.True(t, svc.UpdateCredential(ctx, "f:memberfed:3", domain.Credential{Type: "password", Value: "n3w"}))

	digest, err := credential.Digest("n3w")
	require.NoError(t, err)
	assert.Equal(t, digest, storedSecret(t, db, 3))
	assert.True(t, svc.ValidCredential(ctx, "f:memberfed:3", domain.Credential{Type: "password", Value: "n3w"}))

	assert.False(t, svc.UpdateCredential(ctx, "f:memberfed:3", domain.Credential{Type: "otp", Value: "1"}))
	assert.False(t, svc.UpdateCredential(ctx, "f:memberfed:99", domain.Credential{Type: "password", Value: "x"}))
}

func TestAddAndRemoveMember(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	_, ok := svc.AddMember(ctx, "zoe")
	assert.False(t, ok)

	assert.True(t, svc.RemoveMember(ctx, "f:memberfed:3"))
	assert.False(t, svc.RemoveMember(ctx, "f:memberfed:3"))

	_, ok = svc.MemberByID(ctx, "f:memberfed:3")
	assert.False(t, ok)
	assert.Equal(t, 2, svc.Count(ctx))
}

func TestQueries(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.MaxResults = 2

	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	assert.Equal(t, 3, svc.Count(ctx))

	usernames := func(adapters []*MemberAdapter) []string {
		names := make([]string, 0, len(adapters))
		for _, a := range adapters {
			names = append(names, a.Username())
		}

		return names
	}

	assert.Equal(t, []string{"alice", "bob"}, usernames(svc.Members(ctx, 0, -1)))
	assert.Equal(t, []string{"bob", "malik"}, usernames(svc.Members(ctx, 1, 10)))
	assert.Equal(t, []string{"alice", "malik"}, usernames(svc.Search(ctx, "LI", 0, 10)))
	assert.Equal(t, []string{"alice", "bob"}, usernames(svc.Search(ctx, "*", 0, -1)))

	assert.Equal(t, []string{"bob"},
		usernames(svc.SearchByParams(ctx, map[string]string{ParamUsername: "bob"}, 0, 10)))
	assert.Equal(t, []string{"malik"},
		usernames(svc.SearchByParams(ctx, map[string]string{ParamEmail: "malik@example.org"}, 0, 10)))
	assert.Equal(t, []string{"malik"},
		usernames(svc.SearchByParams(ctx, map[string]string{ParamHostSearch: "MAL"}, 0, 10)))
	assert.Empty(t, svc.SearchByParams(ctx, map[string]string{ParamUsername: "zoe"}, 0, 10))
}

func TestAdapterWritesThrough(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	a, ok := svc.MemberByID(ctx, "f:memberfed:2")
	require.True(t, ok)

	require.True(t, a.SetSingleAttribute(ctx, "chambre_id", "42"))
	require.True(t, a.SetSingleAttribute(ctx, "dateSignedHosting", "2025-02-03 04:05"))
	require.True(t, a.SetSingleAttribute(ctx, "departureDate", "2025-07-01"))
	require.True(t, a.SetCreatedTimestampText(ctx, "2024-01-02T03:04:05Z"))

	reloaded, ok := svc.MemberByID(ctx, "f:memberfed:2")
	require.True(t, ok)

	assert.Equal(t, []string{"42"}, reloaded.Attribute(ctx, "chambreId"))
	assert.Equal(t, []string{"2025-02-03T04:05:00"}, reloaded.Attribute(ctx, "datesignedhosting"))
	assert.Equal(t, []string{"2025-07-01"}, reloaded.Attribute(ctx, "date_de_depart"))

	created, ok := reloaded.CreatedTimestamp()
	require.True(t, ok)
	assert.Equal(t, int64(1704164645000), created)

	require.True(t, a.RemoveAttribute(ctx, "chambreId"))

	reloaded, _ = svc.MemberByID(ctx, "f:memberfed:2")
	assert.Nil(t, reloaded.Attribute(ctx, "chambre_id"))
}

func TestAdapterRejectsDuplicateUsername(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultConfig())
	ctx := context.Background()

	a, ok := svc.MemberByID(ctx, "f:memberfed:2")
	require.True(t, ok)

	assert.False(t, a.SetUsername(ctx, "alice"))
	assert.Equal(t, "bob", a.Username())
	assert.Equal(t, []string{"bob"}, a.Attribute(ctx, "login"))
	assert.InDelta(t, 1, testutil.ToFloat64(svc.Metrics.AttributeWrites.WithLabelValues("failed")), 0)
}
