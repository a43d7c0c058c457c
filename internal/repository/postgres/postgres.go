package postgres

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.UserRepository = (*Repository)(nil)

const userColumns = `id, username, password_hash, email, phone, first_name, last_name,
	specialization, year_started, bio, license_id, brokerage, brokerage_address,
	brokerage_number, account_type, activated, last_login, created_at`

// CreateUser inserts a user record.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, username, password_hash, email, phone, first_name, last_name,
		specialization, year_started, bio, license_id, brokerage, brokerage_address,
		brokerage_number, account_type, activated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Email,
		user.Phone,
		user.FirstName,
		user.LastName,
		user.Specialization,
		user.YearStarted,
		user.Bio,
		user.LicenseID,
		user.Brokerage,
		user.BrokerageAddress,
		user.BrokerageNumber,
		string(user.AccountType),
		user.Activated,
		user.CreatedAt,
	)
	return classify(err)
}

// GetUserByUsername fetches a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// SetActivated flips the activation flag and returns the updated record.
func (r *Repository) SetActivated(ctx context.Context, id string, activated bool) (*domain.User, error) {
	const query = `UPDATE users SET activated = $2 WHERE id = $1
		RETURNING ` + userColumns
	return r.scanUser(r.pool.QueryRow(ctx, query, id, activated))
}

// TouchLastLogin records a successful login. Concurrent logins race on this
// column; last write wins.
func (r *Repository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListPendingActivation returns agent accounts awaiting admin approval.
func (r *Repository) ListPendingActivation(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
		WHERE activated = FALSE AND account_type = 'agent'
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, classify(rows.Err())
}

// DeleteUser removes a user record.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Health pings the pool. The store guard calls this before guarded routes.
func (r *Repository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return repository.ErrUnavailable
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	return scanUserFrom(row)
}

func scanUserFrom(row pgx.Row) (*domain.User, error) {
	var (
		u           domain.User
		accountType string
		lastLogin   *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Email,
		&u.Phone,
		&u.FirstName,
		&u.LastName,
		&u.Specialization,
		&u.YearStarted,
		&u.Bio,
		&u.LicenseID,
		&u.Brokerage,
		&u.BrokerageAddress,
		&u.BrokerageNumber,
		&accountType,
		&u.Activated,
		&lastLogin,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classify(err)
	}
	u.AccountType = domain.AccountType(accountType)
	if lastLogin != nil {
		t := lastLogin.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}

// classify maps driver errors onto the repository taxonomy. Connectivity
// failures must surface as ErrUnavailable so routes answer 500, never as a
// semantic 400/404.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return repository.ErrDuplicate
		case pgErr.Code == "22P02":
			return repository.ErrInvalidArgument
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
			return repository.ErrUnavailable
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return repository.ErrUnavailable
	}
	return err
}
