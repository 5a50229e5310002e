package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckyshop/server/internal/apperr"
)

func TestAuthenticate_validAccessSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)
	before := env.user(t, sess.UserID)

	res, err := env.auth.Authenticate(context.Background(), sess.Tokens.AccessToken, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, res.UserID)
	assert.Nil(t, res.Rotated)
	assert.Equal(t, before, env.user(t, sess.UserID))
}

func TestAuthenticate_missingRefresh(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)

	_, err := env.auth.Authenticate(context.Background(), sess.Tokens.AccessToken, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestAuthenticate_tamperedAccessIsAttack(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)

	forger := NewTokenService(TokenConfig{
		AccessSecret:  "guessed-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		Now:           env.clock.Now,
	})
	forged, err := forger.IssuePair(sess.UserID, testPhone)
	require.NoError(t, err)

	for _, access := range []string{forged.AccessToken, "garbage", sess.Tokens.RefreshToken} {
		_, err := env.auth.Authenticate(context.Background(), access, sess.Tokens.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrAttack)
	}
	// hostile input never rotates the session
	assert.Equal(t, sess.Tokens.RefreshToken, env.user(t, sess.UserID).SessionFingerprint)
}

func TestAuthenticate_rotatesExpiredAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.register(t, testPhone, testPassword)

	env.clock.Advance(testAccessTTL + time.Second)

	res, err := env.auth.Authenticate(ctx, sess.Tokens.AccessToken, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, res.Rotated)
	assert.Equal(t, sess.UserID, res.UserID)
	assert.NotEqual(t, sess.Tokens.RefreshToken, res.Rotated.RefreshToken)
	assert.Equal(t, res.Rotated.RefreshToken, env.user(t, sess.UserID).SessionFingerprint)

	// the new access token is accepted on its own
	next, err := env.auth.Authenticate(ctx, res.Rotated.AccessToken, res.Rotated.RefreshToken)
	require.NoError(t, err)
	assert.Nil(t, next.Rotated)

	// the superseded refresh token can never mint again
	_, err = env.auth.Authenticate(ctx, sess.Tokens.AccessToken, sess.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestAuthenticate_absentAccessRotates(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)

	res, err := env.auth.Authenticate(context.Background(), "", sess.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, res.Rotated)
	assert.Equal(t, sess.UserID, res.UserID)
}

func TestAuthenticate_rotationFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.register(t, testPhone, testPassword)

	wrongPhone, err := env.tokens.IssuePair(sess.UserID, "9999999")
	require.NoError(t, err)
	unknownUser, err := env.tokens.IssuePair(sess.UserID+100, testPhone)
	require.NoError(t, err)

	for name, refresh := range map[string]string{
		"garbage":      "garbage",
		"access token": sess.Tokens.AccessToken,
		"wrong phone":  wrongPhone.RefreshToken,
		"unknown user": unknownUser.RefreshToken,
	} {
		_, err := env.auth.Authenticate(ctx, "", refresh)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated, name)
	}

	env.clock.Advance(testRefreshTTL + time.Second)
	_, err = env.auth.Authenticate(ctx, "", sess.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "expired refresh")
}

func TestAuthenticate_concurrentRotationHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.Authenticate(context.Background(), "", sess.Tokens.RefreshToken)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.register(t, testPhone, testPassword)

	require.NoError(t, env.auth.Logout(ctx, sess.Tokens.RefreshToken))
	fp := env.user(t, sess.UserID).SessionFingerprint
	assert.NotEqual(t, sess.Tokens.RefreshToken, fp)
	assert.Len(t, fp, 64)

	_, err := env.auth.Authenticate(ctx, "", sess.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.ErrorIs(t, env.auth.Logout(ctx, sess.Tokens.RefreshToken), apperr.ErrUnauthenticated)
}

func TestLogout_invalidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.register(t, testPhone, testPassword)

	wrongPhone, err := env.tokens.IssuePair(sess.UserID, "9999999")
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.Logout(ctx, ""), apperr.ErrUnauthenticated)
	assert.ErrorIs(t, env.auth.Logout(ctx, "garbage"), apperr.ErrUnauthenticated)
	assert.ErrorIs(t, env.auth.Logout(ctx, wrongPhone.RefreshToken), apperr.ErrUnauthenticated)
	assert.Equal(t, sess.Tokens.RefreshToken, env.user(t, sess.UserID).SessionFingerprint)
}

func TestSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "959123456", testPassword)
	login, err := env.auth.Login(ctx, "959123456", testPassword)
	require.NoError(t, err)

	// login superseded the registration session
	_, err = env.auth.Authenticate(ctx, "", reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	res, err := env.auth.Authenticate(ctx, login.Tokens.AccessToken, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, res.UserID)

	require.NoError(t, env.auth.Logout(ctx, login.Tokens.RefreshToken))

	env.clock.Advance(testAccessTTL + time.Second)
	for _, pair := range []TokenPair{reg.Tokens, login.Tokens} {
		_, err := env.auth.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, testPhone, testPassword)

	u, err := env.auth.GetUser(context.Background(), sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, testPhone, u.Phone)

	_, err = env.auth.GetUser(context.Background(), sess.UserID+1)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
