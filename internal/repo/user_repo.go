package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/luckyshop/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	Create(ctx context.Context, u model.NewUser) (model.User, error)
	Update(ctx context.Context, id int64, upd model.UserUpdate) (model.User, error)
	// SwapFingerprint replaces the session fingerprint only if it still equals current.
	// Reports false when another writer got there first.
	SwapFingerprint(ctx context.Context, id int64, current, next string) (bool, error)
}

const userColumns = `id, phone, password_hash, first_name, last_name, image, role, status,
	error_login_count, session_fingerprint, created_at, updated_at`

type userRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db, now: time.Now}
}

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var role, status string
	err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Image,
		&role,
		&status,
		&u.ErrorLoginCount,
		&u.SessionFingerprint,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	return u, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByPhone retrieves a user by normalized phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

// Create inserts a new ACTIVE user with role USER
func (r *userRepo) Create(ctx context.Context, nu model.NewUser) (model.User, error) {
	now := r.now()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (phone, password_hash, role, status, error_login_count, session_fingerprint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
		RETURNING `+userColumns,
		nu.Phone, nu.PasswordHash, string(model.RoleUser), string(model.StatusActive), nu.SessionFingerprint, now,
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("create user: %w", ErrConflict)
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Update applies a partial update and stamps updated_at
func (r *userRepo) Update(ctx context.Context, id int64, upd model.UserUpdate) (model.User, error) {
	var s setClause
	if upd.PasswordHash != nil {
		s.set("password_hash", *upd.PasswordHash)
	}
	if upd.Status != nil {
		s.set("status", string(*upd.Status))
	}
	if upd.ErrorLoginCount != nil {
		s.set("error_login_count", *upd.ErrorLoginCount)
	} else if upd.IncrementErrorLoginCount {
		s.raw("error_login_count = error_login_count + 1")
	}
	if upd.SessionFingerprint != nil {
		s.set("session_fingerprint", *upd.SessionFingerprint)
	}
	s.set("updated_at", r.now())

	query := `UPDATE users SET ` + s.String() + ` WHERE id = ` + s.where(id) + ` RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRowContext(ctx, query, s.args...))
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// SwapFingerprint is a compare-and-swap on session_fingerprint
func (r *userRepo) SwapFingerprint(ctx context.Context, id int64, current, next string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET session_fingerprint = $3, updated_at = $4
		WHERE id = $1 AND session_fingerprint = $2
	`, id, current, next, r.now())
	if err != nil {
		return false, fmt.Errorf("swap session fingerprint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap session fingerprint: %w", err)
	}
	return n == 1, nil
}
