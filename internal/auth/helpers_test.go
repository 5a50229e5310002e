package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo/repotest"
)

const (
	testPhone      = "9123456"
	testPassword   = "secret12"
	testAccessTTL  = 2 * time.Minute
	testRefreshTTL = 30 * 24 * time.Hour
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// captureSender records the last code sent to each phone
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendOTP(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[phone] = code
	return nil
}

func (s *captureSender) code(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type testEnv struct {
	clock  *repotest.Clock
	store  *repotest.Store
	tokens *TokenService
	sender *captureSender
	otp    *OtpService
	auth   *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := repotest.NewClock(testStart)
	store := repotest.NewStore(clock.Now)
	hasher := NewHasher(bcrypt.MinCost)
	tokens := NewTokenService(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		Now:           clock.Now,
	})
	sender := &captureSender{}
	return &testEnv{
		clock:  clock,
		store:  store,
		tokens: tokens,
		sender: sender,
		otp: NewOtpService(store.Otps(), store.Users(), hasher, sender, OtpConfig{
			Location: time.UTC,
			Now:      clock.Now,
		}),
		auth: NewAuthService(store.Users(), store.Otps(), tokens, hasher, AuthConfig{
			Location: time.UTC,
			Now:      clock.Now,
		}),
	}
}

// verified runs request and verify for phone and returns the verify token
func (e *testEnv) verified(t *testing.T, phone string, purpose Purpose) string {
	t.Helper()
	ctx := context.Background()
	ch, err := e.otp.RequestCode(ctx, phone, purpose)
	require.NoError(t, err)
	v, err := e.otp.VerifyCode(ctx, phone, e.sender.code(ch.Phone), ch.Token, purpose)
	require.NoError(t, err)
	return v.Token
}

// register runs the full registration flow and returns the initial session
func (e *testEnv) register(t *testing.T, phone, password string) Session {
	t.Helper()
	token := e.verified(t, phone, PurposeRegister)
	sess, err := e.auth.ConfirmPassword(context.Background(), phone, password, token, PurposeRegister)
	require.NoError(t, err)
	return sess
}

func (e *testEnv) otpRow(t *testing.T, phone string) model.OtpChallenge {
	t.Helper()
	row, err := e.store.Otps().GetByPhone(context.Background(), phone)
	require.NoError(t, err)
	return row
}

func (e *testEnv) user(t *testing.T, id int64) model.User {
	t.Helper()
	u, err := e.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
