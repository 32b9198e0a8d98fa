package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/memberfed/internal/domain"
	"github.com/mkrupp/memberfed/internal/infra/logging"
)

var (
	// ErrInvalidTable is returned when the configured table name is not a plain identifier.
	ErrInvalidTable = errors.New("invalid table name")
	// ErrUnknownColumn is returned when an update targets a column outside the member schema.
	ErrUnknownColumn = errors.New("unknown column")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	pqUniqueViolation       = "23505"
	mysqlDuplicateEntry     = 1062
	sqliteBusyTimeoutPragma = "busy_timeout"
)

//nolint:gochecknoglobals
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLRepositoryConfig holds configuration for the SQL member repository.
type SQLRepositoryConfig struct {
	// Driver is the database/sql driver name ("sqlite", "postgres" or "mysql")
	Driver string `env:"DRIVER" default:"sqlite"`
	// DSN is the data source name; for sqlite the database file path
	DSN string `env:"DSN" default:"var/storage/members.db"`
	// Table is the member table name
	Table string `env:"TABLE" default:"adherents"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" default:"5m"`
	// BusyTimeout is the sqlite lock wait in milliseconds
	BusyTimeout int `env:"BUSY_TIMEOUT" default:"5000"`
}

type statements struct {
	byID, byUsername, byEmail string
	list, search, count       string
	secret, delete            string
}

// SQLRepository implements Repository over a connection-pooled SQL database.
type SQLRepository struct {
	db        *sqlx.DB
	log       logging.Logger
	table     string
	stmt      statements
	writeLock *sync.Mutex // nil unless the driver serializes writers
}

var _ Repository = (*SQLRepository)(nil)

// SQLRepositoryFactory creates a factory function that returns a new SQLRepository.
// The factory function implements the RepositoryFactory type.
func SQLRepositoryFactory(cfg SQLRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLRepository(cfg)
	}
}

// NewSQLRepository opens the database described by cfg.
// Returns an error if the table name is invalid or the database is unreachable.
func NewSQLRepository(cfg SQLRepositoryConfig) (*SQLRepository, error) {
	dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	repo, err := NewSQLRepositoryFromDB(db, cfg.Table)
	if err != nil {
		db.Close()

		return nil, err
	}

	return repo, nil
}

func driverDSN(cfg SQLRepositoryConfig) (string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return SQLiteDSN(cfg.DSN, cfg.BusyTimeout), nil
	case DriverMySQL:
		return MySQLDSN(cfg.DSN)
	default:
		return cfg.DSN, nil
	}
}

// SQLiteDSN adds a busy timeout pragma to a sqlite DSN so that every pooled
// connection waits for locks. A DSN that already sets busy_timeout is kept.
func SQLiteDSN(dsn string, busyTimeout int) string {
	if busyTimeout <= 0 || strings.Contains(dsn, sqliteBusyTimeoutPragma) {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s_pragma=%s(%d)", dsn, sep, sqliteBusyTimeoutPragma, busyTimeout)
}

// MySQLDSN makes UPDATE report matched rather than changed rows, so that
// writing an unchanged value is not mistaken for a missing member.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}

	cfg.ClientFoundRows = true

	return cfg.FormatDSN(), nil
}

// NewSQLRepositoryFromDB wraps an already open database handle.
func NewSQLRepositoryFromDB(db *sqlx.DB, table string) (*SQLRepository, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	log := logging.GetLogger("repo.member.sql_member_repository").With(
		logging.Group("db", "driver", db.DriverName(), "table", table),
	)

	repo := &SQLRepository{
		db:    db,
		log:   log,
		table: table,
		stmt: statements{
			byID:       db.Rebind("SELECT * FROM " + table + " WHERE " + ColumnID + " = ?"),
			byUsername: db.Rebind("SELECT * FROM " + table + " WHERE " + ColumnUsername + " = ?"),
			byEmail:    db.Rebind("SELECT * FROM " + table + " WHERE " + ColumnEmail + " = ?"),
			list:       db.Rebind("SELECT * FROM " + table + " ORDER BY " + ColumnID + " LIMIT ? OFFSET ?"),
			search: db.Rebind("SELECT * FROM " + table + " WHERE LOWER(" + ColumnUsername + ") LIKE ?" +
				" ORDER BY " + ColumnID + " LIMIT ? OFFSET ?"),
			count:  "SELECT COUNT(*) FROM " + table,
			secret: db.Rebind("SELECT " + ColumnPassword + " FROM " + table + " WHERE " + ColumnID + " = ?"),
			delete: db.Rebind("DELETE FROM " + table + " WHERE " + ColumnID + " = ?"),
		},
	}

	if db.DriverName() == DriverSQLite {
		repo.writeLock = new(sync.Mutex) // go-sqlite does not support concurrent writes
	}

	return repo, nil
}

// FindByID implements Repository.FindByID.
func (r *SQLRepository) FindByID(ctx context.Context, id int64) (*domain.Member, bool, error) {
	return r.findOne(ctx, r.stmt.byID, id)
}

// FindByUsername implements Repository.FindByUsername.
func (r *SQLRepository) FindByUsername(ctx context.Context, username string) (*domain.Member, bool, error) {
	return r.findOne(ctx, r.stmt.byUsername, username)
}

// FindByEmail implements Repository.FindByEmail.
func (r *SQLRepository) FindByEmail(ctx context.Context, email string) (*domain.Member, bool, error) {
	return r.findOne(ctx, r.stmt.byEmail, email)
}

func (r *SQLRepository) findOne(ctx context.Context, query string, arg any) (*domain.Member, bool, error) {
	row := make(map[string]any)

	if err := r.db.QueryRowxContext(ctx, query, arg).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query member: %w", err)
	}

	return r.decode(ctx, row), true, nil
}

// List implements Repository.List.
func (r *SQLRepository) List(ctx context.Context, first, limit int) ([]*domain.Member, error) {
	return r.findMany(ctx, r.stmt.list, limit, first)
}

// Search implements Repository.Search.
func (r *SQLRepository) Search(ctx context.Context, text string, first, limit int) ([]*domain.Member, error) {
	return r.findMany(ctx, r.stmt.search, "%"+strings.ToLower(text)+"%", limit, first)
}

func (r *SQLRepository) findMany(ctx context.Context, query string, args ...any) (_ []*domain.Member, err error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var members []*domain.Member

	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}

		members = append(members, r.decode(ctx, row))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

func (r *SQLRepository) decode(ctx context.Context, row map[string]any) *domain.Member {
	member, err := Decode(row)
	if err != nil {
		r.log.WarnContext(ctx, "partial member decode", "member", member.ID, "error", err)
	}

	return member
}

// Count implements Repository.Count.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var count int

	if err := r.db.QueryRowxContext(ctx, r.stmt.count).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}

	return count, nil
}

// Secret implements Repository.Secret.
func (r *SQLRepository) Secret(ctx context.Context, id int64) (string, bool, error) {
	var secret sql.NullString

	if err := r.db.QueryRowxContext(ctx, r.stmt.secret, id).Scan(&secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("query secret: %w", err)
	}

	return secret.String, secret.Valid, nil
}

// UpdateColumn implements Repository.UpdateColumn.
func (r *SQLRepository) UpdateColumn(ctx context.Context, id int64, column string, value any) error {
	if column == ColumnID || (column != ColumnPassword && !slices.Contains(Columns(), column)) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	query := r.db.Rebind("UPDATE " + r.table + " SET " + column + " = ? WHERE " + ColumnID + " = ?")

	affected, err := r.exec(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}

	if affected == 0 {
		return fmt.Errorf("update %s: %w", column, domain.ErrMemberNotFound)
	}

	return nil
}

// Delete implements Repository.Delete.
func (r *SQLRepository) Delete(ctx context.Context, id int64) (bool, error) {
	affected, err := r.exec(ctx, r.stmt.delete, id)
	if err != nil {
		return false, fmt.Errorf("delete member: %w", err)
	}

	return affected > 0, nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	if r.writeLock != nil {
		r.writeLock.Lock()
		defer r.writeLock.Unlock()
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}

func mapWriteError(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			fallthrough
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return errors.Join(domain.ErrMemberConflict, err)
		default:
			return err
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Join(domain.ErrMemberConflict, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return errors.Join(domain.ErrMemberConflict, err)
	}

	return err
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
