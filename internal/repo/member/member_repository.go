package member

import (
	"context"

	"github.com/mkrupp/memberfed/internal/domain"
)

// Repository defines the statements issued against the member table.
// No implementation ever alters the schema.
type Repository interface {
	// FindByID retrieves a member by its local integer key.
	// Returns the member and true if found, or nil and false if not found.
	// Returns an error if the statement fails.
	FindByID(ctx context.Context, id int64) (*domain.Member, bool, error)

	// FindByUsername retrieves a member by login.
	FindByUsername(ctx context.Context, username string) (*domain.Member, bool, error)

	// FindByEmail retrieves a member by mail address.
	FindByEmail(ctx context.Context, email string) (*domain.Member, bool, error)

	// List returns at most limit members starting at offset first, ordered by key.
	List(ctx context.Context, first, limit int) ([]*domain.Member, error)

	// Search returns members whose login contains text, case-insensitively.
	Search(ctx context.Context, text string, first, limit int) ([]*domain.Member, error)

	// Count returns the number of rows in the member table.
	Count(ctx context.Context) (int, error)

	// Secret returns the stored credential value of a member.
	// The bool is false if the member does not exist or the value is NULL.
	Secret(ctx context.Context, id int64) (string, bool, error)

	// UpdateColumn sets a single known column of one member.
	// Returns ErrMemberNotFound if no row was affected.
	UpdateColumn(ctx context.Context, id int64, column string, value any) error

	// Delete removes a member row. Returns false if no row matched.
	Delete(ctx context.Context, id int64) (bool, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)
