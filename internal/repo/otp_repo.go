package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/luckyshop/server/internal/model"
)

// OtpRepo defines the interface for OTP challenge repository operations.
// There is at most one challenge row per phone; it is updated in place and never deleted.
type OtpRepo interface {
	GetByPhone(ctx context.Context, phone string) (model.OtpChallenge, error)
	Create(ctx context.Context, c model.NewOtpChallenge) (model.OtpChallenge, error)
	Update(ctx context.Context, id int64, upd model.OtpUpdate) (model.OtpChallenge, error)
}

const otpColumns = `id, phone, otp_hash, remember_token, verify_token, request_count, error_count, created_at, updated_at`

type otpRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db, now: time.Now}
}

func scanOtp(row interface{ Scan(...any) error }) (model.OtpChallenge, error) {
	var c model.OtpChallenge
	var verifyToken sql.NullString
	err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.OTPHash,
		&c.RememberToken,
		&verifyToken,
		&c.RequestCount,
		&c.ErrorCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpChallenge{}, ErrNotFound
		}
		return model.OtpChallenge{}, err
	}
	c.VerifyToken = verifyToken.String
	return c, nil
}

// GetByPhone returns the challenge row of the phone
func (r *otpRepo) GetByPhone(ctx context.Context, phone string) (model.OtpChallenge, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+otpColumns+` FROM otp_challenges WHERE phone = $1`, phone)
	c, err := scanOtp(row)
	if err != nil {
		return model.OtpChallenge{}, fmt.Errorf("get otp challenge: %w", err)
	}
	return c, nil
}

// Create inserts the first challenge of a phone with request_count = 1 and error_count = 0
func (r *otpRepo) Create(ctx context.Context, nc model.NewOtpChallenge) (model.OtpChallenge, error) {
	now := r.now()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (phone, otp_hash, remember_token, request_count, error_count, created_at, updated_at)
		VALUES ($1, $2, $3, 1, 0, $4, $4)
		RETURNING `+otpColumns,
		nc.Phone, nc.OTPHash, nc.RememberToken, now,
	)
	c, err := scanOtp(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.OtpChallenge{}, fmt.Errorf("create otp challenge: %w", ErrConflict)
		}
		return model.OtpChallenge{}, fmt.Errorf("create otp challenge: %w", err)
	}
	return c, nil
}

// Update applies a partial update in a single statement and stamps updated_at.
// An empty VerifyToken clears the column.
func (r *otpRepo) Update(ctx context.Context, id int64, upd model.OtpUpdate) (model.OtpChallenge, error) {
	var s setClause
	if upd.OTPHash != nil {
		s.set("otp_hash", *upd.OTPHash)
	}
	if upd.RememberToken != nil {
		s.set("remember_token", *upd.RememberToken)
	}
	if upd.VerifyToken != nil {
		s.set("verify_token", sql.NullString{String: *upd.VerifyToken, Valid: *upd.VerifyToken != ""})
	}
	if upd.RequestCount != nil {
		s.set("request_count", *upd.RequestCount)
	} else if upd.IncrementRequestCount {
		s.raw("request_count = request_count + 1")
	}
	if upd.ErrorCount != nil {
		s.set("error_count", *upd.ErrorCount)
	} else if upd.IncrementErrorCount {
		s.raw("error_count = error_count + 1")
	}
	s.set("updated_at", r.now())

	query := `UPDATE otp_challenges SET ` + s.String() + ` WHERE id = ` + s.where(id) + ` RETURNING ` + otpColumns
	c, err := scanOtp(r.db.QueryRowContext(ctx, query, s.args...))
	if err != nil {
		return model.OtpChallenge{}, fmt.Errorf("update otp challenge: %w", err)
	}
	return c, nil
}
