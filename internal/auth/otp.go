package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo"
)

const (
	otpLength         = 6
	otpExpiry         = 5 * time.Minute
	maxRequestsPerDay = 3
	wrongCodeLockout  = 1 // any outstanding wrong code blocks new requests for the day
	abuseFlag         = 5 // forged remember/verify token: terminal for the day
	devOTPCode        = "123123"
)

// Purpose selects the flow an OTP round belongs to
type Purpose int

const (
	// PurposeRegister requires that no account exists for the phone
	PurposeRegister Purpose = iota
	// PurposeReset requires an existing account
	PurposeReset
)

func (p Purpose) String() string {
	if p == PurposeReset {
		return "reset"
	}
	return "register"
}

// Challenge is what the client receives after requesting or verifying a code
type Challenge struct {
	Phone string
	Token string
}

// OtpConfig configures an OtpService
type OtpConfig struct {
	// DevMode issues the fixed code 123123 instead of a random one
	DevMode bool
	// Location decides calendar-day boundaries; defaults to time.Local
	Location *time.Location
	// Now defaults to time.Now
	Now func() time.Time
}

// OtpService issues, rate-limits and verifies one-time codes. All state lives in the single challenge row
// of the phone.
type OtpService struct {
	otps    repo.OtpRepo
	users   repo.UserRepo
	hasher  *Hasher
	sender  Sender
	devMode bool
	loc     *time.Location
	now     func() time.Time
}

// NewOtpService creates a new OTP service
func NewOtpService(otps repo.OtpRepo, users repo.UserRepo, hasher *Hasher, sender Sender, cfg OtpConfig) *OtpService {
	s := &OtpService{
		otps:    otps,
		users:   users,
		hasher:  hasher,
		sender:  sender,
		devMode: cfg.DevMode,
		loc:     cfg.Location,
		now:     cfg.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestCode issues a new code for the phone, overwriting any previous round, and returns the remember
// token the client must present with the code.
func (s *OtpService) RequestCode(ctx context.Context, rawPhone string, purpose Purpose) (Challenge, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return Challenge{}, err
	}
	if err := checkAccount(ctx, s.users, phone, purpose); err != nil {
		return Challenge{}, err
	}

	code := devOTPCode
	if !s.devMode {
		if code, err = generateOTPCode(); err != nil {
			return Challenge{}, err
		}
	}
	otpHash, err := s.hasher.Hash(code)
	if err != nil {
		return Challenge{}, err
	}
	rememberToken, err := GenerateToken()
	if err != nil {
		return Challenge{}, err
	}

	row, err := s.issue(ctx, phone, otpHash, rememberToken)
	if err != nil {
		return Challenge{}, err
	}

	if err := s.sender.SendOTP(ctx, row.Phone, code); err != nil {
		return Challenge{}, fmt.Errorf("send otp: %w", err)
	}
	log.Printf("[otp] %s code issued to %s (request %d today)", purpose, MaskPhone(phone), row.RequestCount)

	return Challenge{Phone: row.Phone, Token: row.RememberToken}, nil
}

// issue creates the challenge row or overwrites the existing one, applying the daily budget
func (s *OtpService) issue(ctx context.Context, phone, otpHash, rememberToken string) (model.OtpChallenge, error) {
	for attempt := 0; ; attempt++ {
		row, err := s.otps.GetByPhone(ctx, phone)
		if errors.Is(err, repo.ErrNotFound) {
			created, err := s.otps.Create(ctx, model.NewOtpChallenge{
				Phone:         phone,
				OTPHash:       otpHash,
				RememberToken: rememberToken,
			})
			// lost the insert race for this phone: retry once against the winner's row
			if errors.Is(err, repo.ErrConflict) && attempt == 0 {
				continue
			}
			if err != nil {
				return model.OtpChallenge{}, err
			}
			return created, nil
		}
		if err != nil {
			return model.OtpChallenge{}, err
		}

		sameDay := s.sameDay(row.UpdatedAt)
		if sameDay && row.ErrorCount >= wrongCodeLockout {
			return model.OtpChallenge{}, apperr.New(apperr.KindOverLimit, "OTP is wrong. Please try again tomorrow.")
		}

		upd := model.OtpUpdate{
			OTPHash:       &otpHash,
			RememberToken: &rememberToken,
			VerifyToken:   model.Ptr(""),
			ErrorCount:    model.Ptr(0),
		}
		if !sameDay {
			upd.RequestCount = model.Ptr(1)
		} else {
			if row.RequestCount >= maxRequestsPerDay {
				return model.OtpChallenge{}, apperr.New(apperr.KindRateLimited, "OTP is allowed to request 3 times per day.")
			}
			upd.IncrementRequestCount = true
		}
		return s.otps.Update(ctx, row.ID, upd)
	}
}

// VerifyCode checks a code against the current round and, on success, returns a verify token that grants
// one password confirmation.
func (s *OtpService) VerifyCode(ctx context.Context, rawPhone, code, rememberToken string, purpose Purpose) (Challenge, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return Challenge{}, err
	}
	if len(code) != otpLength || !isDigits(code) {
		return Challenge{}, apperr.New(apperr.KindInvalidInput, "Invalid OTP")
	}
	if rememberToken == "" {
		return Challenge{}, apperr.New(apperr.KindInvalidInput, "Invalid token")
	}
	if err := checkAccount(ctx, s.users, phone, purpose); err != nil {
		return Challenge{}, err
	}

	row, err := s.otps.GetByPhone(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return Challenge{}, apperr.New(apperr.KindNotFound, "No OTP was requested for this phone.")
	}
	if err != nil {
		return Challenge{}, err
	}

	now := s.now()
	sameDay := s.sameDay(row.UpdatedAt)
	if sameDay && row.ErrorCount >= abuseFlag {
		return Challenge{}, apperr.New(apperr.KindOverLimit, "OTP verification is locked. Please try again tomorrow.")
	}

	if !tokensEqual(row.RememberToken, rememberToken) {
		if _, err := s.otps.Update(ctx, row.ID, model.OtpUpdate{ErrorCount: model.Ptr(abuseFlag)}); err != nil {
			return Challenge{}, err
		}
		log.Printf("[otp] forged remember token for %s, round locked", MaskPhone(phone))
		return Challenge{}, apperr.New(apperr.KindInvalidToken, "Invalid token")
	}

	if now.Sub(row.UpdatedAt) > otpExpiry {
		return Challenge{}, apperr.New(apperr.KindExpired, "OTP is expired")
	}

	ok, err := s.hasher.Compare(row.OTPHash, code)
	if err != nil {
		return Challenge{}, err
	}
	if !ok {
		upd := model.OtpUpdate{IncrementErrorCount: true}
		if !sameDay {
			upd = model.OtpUpdate{ErrorCount: model.Ptr(1)}
		}
		if _, err := s.otps.Update(ctx, row.ID, upd); err != nil {
			return Challenge{}, err
		}
		return Challenge{}, apperr.New(apperr.KindInvalidCode, "OTP is wrong")
	}

	verifyToken, err := GenerateToken()
	if err != nil {
		return Challenge{}, err
	}
	updated, err := s.otps.Update(ctx, row.ID, model.OtpUpdate{VerifyToken: &verifyToken})
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Phone: updated.Phone, Token: updated.VerifyToken}, nil
}

func (s *OtpService) sameDay(t time.Time) bool {
	return sameDate(t, s.now(), s.loc)
}

// checkAccount enforces the account precondition of the flow
func checkAccount(ctx context.Context, users repo.UserRepo, phone string, purpose Purpose) error {
	_, err := users.GetByPhone(ctx, phone)
	switch {
	case err == nil:
		if purpose == PurposeRegister {
			return apperr.New(apperr.KindAlreadyExists, "User already exists.")
		}
		return nil
	case errors.Is(err, repo.ErrNotFound):
		if purpose == PurposeReset {
			return apperr.New(apperr.KindNotFound, "User does not exist.")
		}
		return nil
	default:
		return err
	}
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func tokensEqual(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
