package membersvc

import (
	"context"
	"fmt"
	"math"

	"github.com/mkrupp/memberfed/internal/domain"
	"github.com/mkrupp/memberfed/internal/infra/credential"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	"github.com/mkrupp/memberfed/internal/repo/member"
)

// Search parameter keys understood by SearchByParams.
const (
	ParamSearch     = "search"
	ParamHostSearch = "keycloak.session.realm.users.query.search"
	ParamUsername   = "username"
	ParamEmail      = "email"

	searchAll = "*"
)

// Lookup resolves members by identifier, username or email.
type Lookup interface {
	MemberByID(ctx context.Context, id string) (*MemberAdapter, bool)
	MemberByUsername(ctx context.Context, username string) (*MemberAdapter, bool)
	MemberByEmail(ctx context.Context, email string) (*MemberAdapter, bool)
}

// CredentialValidator checks presented secrets.
type CredentialValidator interface {
	SupportsCredentialType(credentialType string) bool
	IsConfiguredFor(ctx context.Context, memberID, credentialType string) bool
	ValidCredential(ctx context.Context, memberID string, input domain.Credential) bool
}

// CredentialUpdater replaces stored secrets.
type CredentialUpdater interface {
	UpdateCredential(ctx context.Context, memberID string, input domain.Credential) bool
	DisableCredentialType(ctx context.Context, memberID, credentialType string)
	DisableableCredentialTypes(ctx context.Context, memberID string) []string
}

// Registration adds and removes members.
type Registration interface {
	AddMember(ctx context.Context, username string) (*MemberAdapter, bool)
	RemoveMember(ctx context.Context, memberID string) bool
}

// Query enumerates and searches members.
type Query interface {
	Members(ctx context.Context, first, limit int) []*MemberAdapter
	Count(ctx context.Context) int
	Search(ctx context.Context, text string, first, limit int) []*MemberAdapter
	SearchByParams(ctx context.Context, params map[string]string, first, limit int) []*MemberAdapter
}

var (
	_ Lookup              = (*MemberService)(nil)
	_ CredentialValidator = (*MemberService)(nil)
	_ CredentialUpdater   = (*MemberService)(nil)
	_ Registration        = (*MemberService)(nil)
	_ Query               = (*MemberService)(nil)
)

// MemberServiceConfig contains configuration parameters for the member service.
type MemberServiceConfig struct {
	// ComponentID is the federation provider instance encoded in external ids
	ComponentID string `env:"COMPONENT_ID" default:"memberfed"`

	// RehashOnVerify rewrites a plaintext secret as its digest after a successful verification
	RehashOnVerify bool `env:"REHASH_ON_VERIFY" default:"true"`

	// MaxResults caps the page size of listings and searches
	MaxResults int `env:"MAX_RESULTS" default:"500"`
}

// StoreFactory returns the attribute store of one member for the current request.
type StoreFactory func(ctx context.Context, id domain.MemberID) AttributeStore

// MemberService exposes the member table to an identity host: lookups,
// password verification and attribute synchronization.
type MemberService struct {
	Config   MemberServiceConfig
	Repo     member.Repository
	Log      logging.Logger
	Metrics  *Metrics
	NewStore StoreFactory
}

// NewMemberService creates a MemberService with a repository from repoFactory.
// Adapters get a fresh in-memory attribute store unless NewStore is replaced.
func NewMemberService(
	repoFactory member.RepositoryFactory,
	cfg MemberServiceConfig,
	metrics *Metrics,
) (*MemberService, error) {
	repo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new member repo: %w", err)
	}

	return &MemberService{
		Config:  cfg,
		Repo:    repo,
		Log:     logging.GetLogger("svc.membersvc.member_service"),
		Metrics: metrics,
		NewStore: func(context.Context, domain.MemberID) AttributeStore {
			return NewMemoryAttributeStore()
		},
	}, nil
}

// Close releases the repository.
func (s *MemberService) Close() error {
	if err := s.Repo.Close(); err != nil {
		return fmt.Errorf("close member repo: %w", err)
	}

	return nil
}

// MemberByID resolves an external or bare local identifier. Identifiers that
// are neither are retried as a username.
func (s *MemberService) MemberByID(ctx context.Context, id string) (*MemberAdapter, bool) {
	memberID, err := domain.ParseMemberID(id)
	if err != nil {
		s.Log.DebugContext(ctx, "identifier is not a member id, trying username", "id", id, "error", err)

		return s.MemberByUsername(ctx, id)
	}

	if memberID.Component != "" && memberID.Component != s.Config.ComponentID {
		s.Metrics.lookup("id", "missing")
		s.Log.DebugContext(ctx, "member id of another component", "id", id)

		return nil, false
	}

	return s.adapt(ctx, "id", func() (*domain.Member, bool, error) {
		return s.Repo.FindByID(ctx, memberID.Local)
	})
}

func (s *MemberService) MemberByUsername(ctx context.Context, username string) (*MemberAdapter, bool) {
	return s.adapt(ctx, "username", func() (*domain.Member, bool, error) {
		return s.Repo.FindByUsername(ctx, username)
	})
}

func (s *MemberService) MemberByEmail(ctx context.Context, email string) (*MemberAdapter, bool) {
	return s.adapt(ctx, "email", func() (*domain.Member, bool, error) {
		return s.Repo.FindByEmail(ctx, email)
	})
}

func (s *MemberService) adapt(
	ctx context.Context,
	by string,
	find func() (*domain.Member, bool, error),
) (*MemberAdapter, bool) {
	m, ok, err := find()
	if err != nil {
		s.Metrics.lookup(by, "error")
		s.Log.ErrorContext(ctx, "member lookup failed", "by", by, "error", err)

		return nil, false
	}

	if !ok {
		s.Metrics.lookup(by, "missing")

		return nil, false
	}

	s.Metrics.lookup(by, "found")

	return s.newAdapter(ctx, m), true
}

func (s *MemberService) newAdapter(ctx context.Context, m *domain.Member) *MemberAdapter {
	id := domain.NewMemberID(s.Config.ComponentID, m.ID)

	return NewMemberAdapter(ctx, id, m, s.NewStore(ctx, id), s.Repo, s.Metrics, s.Log)
}

// resolve maps a host identifier to a table key, falling back to a username lookup.
func (s *MemberService) resolve(ctx context.Context, id string) (int64, bool) {
	memberID, err := domain.ParseMemberID(id)
	if err == nil {
		return memberID.Local, memberID.Component == "" || memberID.Component == s.Config.ComponentID
	}

	m, ok, err := s.Repo.FindByUsername(ctx, id)
	if err != nil {
		s.Log.ErrorContext(ctx, "member lookup failed", "by", "username", "error", err)

		return 0, false
	}

	if !ok {
		return 0, false
	}

	return m.ID, true
}

func (s *MemberService) SupportsCredentialType(credentialType string) bool {
	return credentialType == domain.CredentialTypePassword
}

// IsConfiguredFor reports whether the member has a stored password.
func (s *MemberService) IsConfiguredFor(ctx context.Context, memberID, credentialType string) bool {
	if !s.SupportsCredentialType(credentialType) {
		return false
	}

	local, ok := s.resolve(ctx, memberID)
	if !ok {
		return false
	}

	stored, ok, err := s.Repo.Secret(ctx, local)
	if err != nil {
		s.Log.ErrorContext(ctx, "read secret failed", "error", err)

		return false
	}

	return ok && stored != ""
}

// ValidCredential verifies a password against the stored secret. A stored
// plaintext secret that matches is rewritten as its digest when RehashOnVerify is set.
func (s *MemberService) ValidCredential(ctx context.Context, memberID string, input domain.Credential) (valid bool) {
	log := s.Log.With("member", memberID)

	defer func() {
		if valid {
			s.Metrics.verification("valid")
			log.DebugContext(ctx, "credential valid")
		} else {
			log.DebugContext(ctx, "credential rejected")
		}
	}()

	if !s.SupportsCredentialType(input.Type) {
		s.Metrics.verification("unsupported")

		return false
	}

	local, ok := s.resolve(ctx, memberID)
	if !ok {
		s.Metrics.verification("unknown_member")

		return false
	}

	stored, ok, err := s.Repo.Secret(ctx, local)
	if err != nil {
		s.Metrics.verification("error")
		log.ErrorContext(ctx, "read secret failed", "error", err)

		return false
	}

	if !ok || !credential.Verify(input.Value, stored) {
		s.Metrics.verification("invalid")

		return false
	}

	if s.Config.RehashOnVerify && !credential.IsDigest(stored) {
		s.rehash(ctx, local, input.Value)
	}

	return true
}

func (s *MemberService) rehash(ctx context.Context, local int64, provided string) {
	if err := s.storeSecret(ctx, local, provided); err != nil {
		s.Metrics.rehash("failed")
		s.Log.WarnContext(ctx, "rehash stored secret failed", "error", err)

		return
	}

	s.Metrics.rehash("applied")
	s.Log.InfoContext(ctx, "stored secret rehashed")
}

func (s *MemberService) storeSecret(ctx context.Context, local int64, provided string) error {
	digest, err := credential.Encode(provided)
	if err != nil {
		return fmt.Errorf("encode secret: %w", err)
	}

	if err := s.Repo.UpdateColumn(ctx, local, member.ColumnPassword, digest); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	return nil
}

// UpdateCredential stores the digest of a new password.
func (s *MemberService) UpdateCredential(ctx context.Context, memberID string, input domain.Credential) (ok bool) {
	var err error

	defer func() {
		if err != nil {
			s.Log.ErrorContext(ctx, "update credential failed", "member", memberID, "error", err)
		}
	}()

	if !s.SupportsCredentialType(input.Type) {
		err = fmt.Errorf("%w: %q", domain.ErrUnsupportedCredentialType, input.Type)

		return false
	}

	local, found := s.resolve(ctx, memberID)
	if !found {
		err = domain.ErrMemberNotFound

		return false
	}

	if err = s.storeSecret(ctx, local, input.Value); err != nil {
		return false
	}

	return true
}

// DisableCredentialType is a no-op: members always authenticate by password.
func (s *MemberService) DisableCredentialType(context.Context, string, string) {}

func (s *MemberService) DisableableCredentialTypes(context.Context, string) []string {
	return nil
}

// AddMember always fails: members are enrolled outside the identity host.
func (s *MemberService) AddMember(ctx context.Context, username string) (*MemberAdapter, bool) {
	s.Log.WarnContext(ctx, "member registration not supported", "username", username)

	return nil, false
}

// RemoveMember deletes the member row.
func (s *MemberService) RemoveMember(ctx context.Context, memberID string) bool {
	local, ok := s.resolve(ctx, memberID)
	if !ok {
		return false
	}

	removed, err := s.Repo.Delete(ctx, local)
	if err != nil {
		s.Log.ErrorContext(ctx, "remove member failed", "member", memberID, "error", err)

		return false
	}

	if removed {
		s.Log.InfoContext(ctx, "member removed", "member", memberID)
	}

	return removed
}

// Members lists members ordered by table key.
func (s *MemberService) Members(ctx context.Context, first, limit int) []*MemberAdapter {
	first, limit = s.page(first, limit)

	return s.adaptAll(ctx, "list", func() ([]*domain.Member, error) {
		return s.Repo.List(ctx, first, limit)
	})
}

// Count returns the number of members, or 0 if storage is unavailable.
func (s *MemberService) Count(ctx context.Context) int {
	count, err := s.Repo.Count(ctx)
	if err != nil {
		s.Log.ErrorContext(ctx, "count members failed", "error", err)

		return 0
	}

	return count
}

// Search matches text case-insensitively against any part of the username.
func (s *MemberService) Search(ctx context.Context, text string, first, limit int) []*MemberAdapter {
	if text == "" || text == searchAll {
		return s.Members(ctx, first, limit)
	}

	first, limit = s.page(first, limit)

	return s.adaptAll(ctx, "search", func() ([]*domain.Member, error) {
		return s.Repo.Search(ctx, text, first, limit)
	})
}

// SearchByParams searches by exact username or email, or by free text.
// Without any recognized parameter it lists all members.
func (s *MemberService) SearchByParams(
	ctx context.Context,
	params map[string]string,
	first, limit int,
) []*MemberAdapter {
	if username, ok := params[ParamUsername]; ok {
		return s.single(s.MemberByUsername(ctx, username))
	}

	if email, ok := params[ParamEmail]; ok {
		return s.single(s.MemberByEmail(ctx, email))
	}

	for _, key := range []string{ParamSearch, ParamHostSearch} {
		if text, ok := params[key]; ok {
			return s.Search(ctx, text, first, limit)
		}
	}

	return s.Members(ctx, first, limit)
}

func (s *MemberService) single(a *MemberAdapter, ok bool) []*MemberAdapter {
	if !ok {
		return nil
	}

	return []*MemberAdapter{a}
}

func (s *MemberService) adaptAll(
	ctx context.Context,
	op string,
	find func() ([]*domain.Member, error),
) []*MemberAdapter {
	members, err := find()
	if err != nil {
		s.Log.ErrorContext(ctx, "member query failed", "op", op, "error", err)

		return nil
	}

	adapters := make([]*MemberAdapter, 0, len(members))
	for _, m := range members {
		adapters = append(adapters, s.newAdapter(ctx, m))
	}

	return adapters
}

// page clamps an offset and page size; a negative size means "as many as allowed".
func (s *MemberService) page(first, limit int) (int, int) {
	if first < 0 {
		first = 0
	}

	ceiling := s.Config.MaxResults
	if ceiling <= 0 {
		ceiling = math.MaxInt32
	}

	if limit < 0 || limit > ceiling {
		limit = ceiling
	}

	return first, limit
}

