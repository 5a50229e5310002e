package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo"
)

const (
	passwordLength    = 8
	verifyTokenExpiry = 10 * time.Minute
	freezeAfterErrors = 2 // errorLoginCount at which the next same-day failure freezes the account
)

// Session is the result of a successful authentication event
type Session struct {
	UserID int64
	Tokens TokenPair
}

// AuthConfig configures an AuthService
type AuthConfig struct {
	// Location decides calendar-day boundaries; defaults to time.Local
	Location *time.Location
	// Now defaults to time.Now
	Now func() time.Time
}

// AuthService orchestrates password confirmation, login, per-request session validation and logout
type AuthService struct {
	users  repo.UserRepo
	otps   repo.OtpRepo
	tokens *TokenService
	hasher *Hasher
	loc    *time.Location
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users repo.UserRepo, otps repo.OtpRepo, tokens *TokenService, hasher *Hasher, cfg AuthConfig) *AuthService {
	s := &AuthService{
		users:  users,
		otps:   otps,
		tokens: tokens,
		hasher: hasher,
		loc:    cfg.Location,
		now:    cfg.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ConfirmPassword consumes the verify token of a verified OTP round. For PurposeRegister it creates the
// account, for PurposeReset it replaces the password. Either way a fresh session is issued.
func (s *AuthService) ConfirmPassword(ctx context.Context, rawPhone, password, verifyToken string, purpose Purpose) (Session, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return Session{}, err
	}
	if len(password) != passwordLength {
		return Session{}, apperr.New(apperr.KindInvalidInput, "Password must be 8 characters")
	}
	if verifyToken == "" {
		return Session{}, apperr.New(apperr.KindInvalidInput, "Invalid token")
	}

	var existing model.User
	if purpose == PurposeReset {
		existing, err = s.users.GetByPhone(ctx, phone)
		if errors.Is(err, repo.ErrNotFound) {
			return Session{}, apperr.New(apperr.KindNotFound, "User does not exist.")
		}
		if err != nil {
			return Session{}, err
		}
	}

	row, err := s.otps.GetByPhone(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, apperr.New(apperr.KindNotFound, "No OTP was requested for this phone.")
	}
	if err != nil {
		return Session{}, err
	}

	if row.ErrorCount >= abuseFlag {
		return Session{}, apperr.New(apperr.KindBlocked, "This request may be an attack.")
	}
	if !tokensEqual(row.VerifyToken, verifyToken) {
		if _, err := s.otps.Update(ctx, row.ID, model.OtpUpdate{ErrorCount: model.Ptr(abuseFlag)}); err != nil {
			return Session{}, err
		}
		log.Printf("[auth] wrong verify token for %s, round burned", MaskPhone(phone))
		return Session{}, apperr.New(apperr.KindInvalidToken, "Invalid token.")
	}
	if s.now().Sub(row.UpdatedAt) > verifyTokenExpiry {
		return Session{}, apperr.New(apperr.KindExpired, "Request expired.")
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, err
	}

	// the grant is single use: clear it before the account changes
	if _, err := s.otps.Update(ctx, row.ID, model.OtpUpdate{VerifyToken: model.Ptr("")}); err != nil {
		return Session{}, err
	}

	user := existing
	if purpose == PurposeRegister {
		placeholder, err := GenerateToken()
		if err != nil {
			return Session{}, err
		}
		user, err = s.users.Create(ctx, model.NewUser{
			Phone:              phone,
			PasswordHash:       passwordHash,
			SessionFingerprint: placeholder,
		})
		if errors.Is(err, repo.ErrConflict) {
			return Session{}, apperr.Wrap(apperr.KindAlreadyExists, "User already exists.", err)
		}
		if err != nil {
			return Session{}, err
		}
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Phone)
	if err != nil {
		return Session{}, err
	}

	upd := model.UserUpdate{SessionFingerprint: &pair.RefreshToken}
	if purpose == PurposeReset {
		upd.PasswordHash = &passwordHash
	}
	if _, err := s.users.Update(ctx, user.ID, upd); err != nil {
		return Session{}, err
	}

	log.Printf("[auth] %s confirmed for user %d", purpose, user.ID)
	return Session{UserID: user.ID, Tokens: pair}, nil
}

// Login checks phone and password. Failures on the same calendar day count towards a freeze: the third
// consecutive failure freezes the account.
func (s *AuthService) Login(ctx context.Context, rawPhone, password string) (Session, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, apperr.New(apperr.KindInvalidInput, "Password is required")
	}

	user, err := s.users.GetByPhone(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, apperr.New(apperr.KindNotFound, "This phone number has not registered.")
	}
	if err != nil {
		return Session{}, err
	}

	if user.Status == model.StatusFreeze {
		return Session{}, apperr.New(apperr.KindAccountFrozen, "Your account is temporarily locked. Please contact us.")
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		var upd model.UserUpdate
		switch {
		case !sameDate(user.UpdatedAt, s.now(), s.loc):
			upd.ErrorLoginCount = model.Ptr(1)
		case user.ErrorLoginCount >= freezeAfterErrors:
			upd.Status = model.Ptr(model.StatusFreeze)
		default:
			upd.IncrementErrorLoginCount = true
		}
		updated, err := s.users.Update(ctx, user.ID, upd)
		if err != nil {
			return Session{}, err
		}
		if updated.Status == model.StatusFreeze {
			log.Printf("[auth] account %d frozen after repeated login failures", user.ID)
		}
		return Session{}, apperr.New(apperr.KindInvalidCredentials, "Invalid Credentials.")
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Phone)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.users.Update(ctx, user.ID, model.UserUpdate{
		SessionFingerprint: &pair.RefreshToken,
		ErrorLoginCount:    model.Ptr(0),
	}); err != nil {
		return Session{}, err
	}

	return Session{UserID: user.ID, Tokens: pair}, nil
}
