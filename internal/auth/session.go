package auth

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo"
)

// AuthResult is the outcome of validating a request's cookies. Rotated is set when a new pair was minted
// and must be written back to the client.
type AuthResult struct {
	UserID  int64
	Rotated *TokenPair
}

var errSessionInvalid = apperr.New(apperr.KindUnauthenticated, "Please login again.")

// Authenticate validates the access/refresh cookies of a request. A valid access token is accepted
// without touching the store. An expired or absent one triggers rotation through the refresh token, which
// must still equal the stored session fingerprint.
func (s *AuthService) Authenticate(ctx context.Context, accessToken, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, apperr.New(apperr.KindUnauthenticated, "You are not authenticated user.")
	}

	if accessToken != "" {
		userID, err := s.tokens.ParseAccess(accessToken)
		if err == nil {
			return AuthResult{UserID: userID}, nil
		}
		if !errors.Is(err, ErrTokenExpired) {
			log.Printf("[auth] rejected tampered access token: %v", err)
			return AuthResult{}, apperr.Wrap(apperr.KindAttack, "This request may be an attack.", err)
		}
	}

	return s.rotate(ctx, refreshToken)
}

func (s *AuthService) rotate(ctx context.Context, refreshToken string) (AuthResult, error) {
	user, err := s.sessionUser(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, err
	}
	if !tokensEqual(user.SessionFingerprint, refreshToken) {
		log.Printf("[auth] superseded refresh token presented for user %d", user.ID)
		return AuthResult{}, errSessionInvalid
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Phone)
	if err != nil {
		return AuthResult{}, err
	}
	swapped, err := s.users.SwapFingerprint(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return AuthResult{}, err
	}
	if !swapped {
		// a concurrent request rotated first; this refresh token is now stale
		return AuthResult{}, errSessionInvalid
	}

	return AuthResult{UserID: user.ID, Rotated: &pair}, nil
}

// Logout invalidates the session behind refreshToken by replacing the stored fingerprint with a random value
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return apperr.New(apperr.KindUnauthenticated, "You are not authenticated user.")
	}
	user, err := s.sessionUser(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !tokensEqual(user.SessionFingerprint, refreshToken) {
		return errSessionInvalid
	}

	fingerprint, err := GenerateToken()
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, user.ID, model.UserUpdate{SessionFingerprint: &fingerprint}); err != nil {
		return err
	}
	log.Printf("[auth] user %d logged out", user.ID)
	return nil
}

// GetUser loads the account behind an authenticated user id
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.User{}, errSessionInvalid
	}
	return user, err
}

// sessionUser verifies the refresh token and loads the user it names. Every failure is Unauthenticated.
func (s *AuthService) sessionUser(ctx context.Context, refreshToken string) (model.User, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.KindUnauthenticated, "Please login again.", err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.KindUnauthenticated, "Please login again.", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.User{}, errSessionInvalid
	}
	if err != nil {
		return model.User{}, err
	}
	if user.Phone != claims.Phone {
		return model.User{}, errSessionInvalid
	}
	return user, nil
}
