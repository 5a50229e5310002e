package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/model"
)

// wrongCode returns a valid-looking code that differs from code
func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestRequestCode_normalizesPhone(t *testing.T) {
	env := newTestEnv(t)

	ch, err := env.otp.RequestCode(context.Background(), "959123456", PurposeRegister)
	require.NoError(t, err)
	assert.Equal(t, "9123456", ch.Phone)
	assert.Len(t, ch.Token, 64)

	code := env.sender.code("9123456")
	assert.Len(t, code, otpLength)
	assert.True(t, isDigits(code))

	row := env.otpRow(t, "9123456")
	assert.Equal(t, 1, row.RequestCount)
	assert.Equal(t, 0, row.ErrorCount)
	assert.NotEqual(t, code, row.OTPHash, "code must be stored hashed")
}

func TestRequestCode_invalidPhone(t *testing.T) {
	env := newTestEnv(t)

	for _, phone := range []string{"", "09abc", "1234", "0123456789012345"} {
		_, err := env.otp.RequestCode(context.Background(), phone, PurposeRegister)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, phone)
	}
	assert.Equal(t, 0, env.store.OtpCount())
}

func TestRequestCode_dailyBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= maxRequestsPerDay; i++ {
		_, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
		require.NoError(t, err)
		assert.Equal(t, i, env.otpRow(t, testPhone).RequestCount)
	}

	_, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	env.clock.Advance(24 * time.Hour)
	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	assert.Equal(t, 1, env.otpRow(t, testPhone).RequestCount)
}

func TestRequestCode_overwritesSingleRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	firstHash := env.otpRow(t, testPhone).OTPHash

	second, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)

	assert.Equal(t, 1, env.store.OtpCount())
	assert.NotEqual(t, first.Token, second.Token)
	row := env.otpRow(t, testPhone)
	assert.Equal(t, second.Token, row.RememberToken)
	assert.NotEqual(t, firstHash, row.OTPHash)
}

func TestRequestCode_clearsPreviousGrant(t *testing.T) {
	env := newTestEnv(t)

	grant := env.verified(t, testPhone, PurposeRegister)
	require.NotEmpty(t, grant)

	_, err := env.otp.RequestCode(context.Background(), testPhone, PurposeRegister)
	require.NoError(t, err)
	assert.Empty(t, env.otpRow(t, testPhone).VerifyToken)
}

func TestRequestCode_accountPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.otp.RequestCode(ctx, testPhone, PurposeReset)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	env.store.PutUser(model.User{Phone: testPhone, Status: model.StatusActive, Role: model.RoleUser})

	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = env.otp.RequestCode(ctx, testPhone, PurposeReset)
	assert.NoError(t, err)
}

func TestRequestCode_devModeFixedCode(t *testing.T) {
	env := newTestEnv(t)
	env.otp.devMode = true

	_, err := env.otp.RequestCode(context.Background(), testPhone, PurposeRegister)
	require.NoError(t, err)
	assert.Equal(t, devOTPCode, env.sender.code(testPhone))
}

func TestVerifyCode_success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)

	v, err := env.otp.VerifyCode(ctx, testPhone, env.sender.code(testPhone), ch.Token, PurposeRegister)
	require.NoError(t, err)
	assert.Equal(t, testPhone, v.Phone)
	assert.NotEmpty(t, v.Token)
	assert.NotEqual(t, ch.Token, v.Token)
	assert.Equal(t, v.Token, env.otpRow(t, testPhone).VerifyToken)
}

func TestVerifyCode_malformedInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := env.otp.VerifyCode(ctx, testPhone, code, ch.Token, PurposeRegister)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, code)
	}
	_, err = env.otp.VerifyCode(ctx, testPhone, "123456", "", PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// malformed input never touches the counters
	assert.Equal(t, 0, env.otpRow(t, testPhone).ErrorCount)
}

func TestVerifyCode_noChallenge(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.otp.VerifyCode(context.Background(), testPhone, "123456", "token", PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestVerifyCode_forgedRememberToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	code := env.sender.code(testPhone)

	_, err = env.otp.VerifyCode(ctx, testPhone, code, "forged", PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.Equal(t, abuseFlag, env.otpRow(t, testPhone).ErrorCount)

	// the right code and token no longer help today
	_, err = env.otp.VerifyCode(ctx, testPhone, code, ch.Token, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrOverLimit)
	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrOverLimit)

	env.clock.Advance(24 * time.Hour)
	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	row := env.otpRow(t, testPhone)
	assert.Equal(t, 0, row.ErrorCount)
	assert.Equal(t, 1, row.RequestCount)
}

func TestVerifyCode_staleRememberTokenAfterReissue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)

	_, err = env.otp.VerifyCode(ctx, testPhone, env.sender.code(testPhone), first.Token, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestVerifyCode_wrongCodeCountsUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, "959123456", PurposeRegister)
	require.NoError(t, err)
	bad := wrongCode(env.sender.code(testPhone))

	for i := 1; i <= 3; i++ {
		_, err := env.otp.VerifyCode(ctx, "959123456", bad, ch.Token, PurposeRegister)
		assert.ErrorIs(t, err, apperr.ErrInvalidCode)
		assert.Equal(t, i, env.otpRow(t, testPhone).ErrorCount)
	}
}

func TestVerifyCode_wrongCodeBlocksNewRequestsToday(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	_, err = env.otp.VerifyCode(ctx, testPhone, wrongCode(env.sender.code(testPhone)), ch.Token, PurposeRegister)
	require.ErrorIs(t, err, apperr.ErrInvalidCode)

	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrOverLimit)

	env.clock.Advance(24 * time.Hour)
	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.NoError(t, err)
}

func TestVerifyCode_repeatedWrongCodesKeepRequestsBlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	bad := wrongCode(env.sender.code(testPhone))
	for i := 0; i < 2; i++ {
		_, err = env.otp.VerifyCode(ctx, testPhone, bad, ch.Token, PurposeRegister)
		require.ErrorIs(t, err, apperr.ErrInvalidCode)
	}
	require.Equal(t, 2, env.otpRow(t, testPhone).ErrorCount)

	_, err = env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrOverLimit)
	row := env.otpRow(t, testPhone)
	assert.Equal(t, 2, row.ErrorCount, "a refused request must not reset the counter")
	assert.Equal(t, ch.Token, row.RememberToken)
}

func TestVerifyCode_wrongCodeAcrossMidnightRestartsCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.clock.Set(time.Date(2026, 3, 10, 23, 58, 0, 0, time.UTC))

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	row := env.otpRow(t, testPhone)
	row.ErrorCount = 3
	env.store.PutOtp(row)

	env.clock.Advance(3 * time.Minute)
	_, err = env.otp.VerifyCode(ctx, testPhone, wrongCode(env.sender.code(testPhone)), ch.Token, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)
	assert.Equal(t, 1, env.otpRow(t, testPhone).ErrorCount)
}

func TestVerifyCode_expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)

	env.clock.Advance(otpExpiry + time.Second)
	_, err = env.otp.VerifyCode(ctx, testPhone, env.sender.code(testPhone), ch.Token, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestVerifyCode_accountPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.otp.RequestCode(ctx, testPhone, PurposeRegister)
	require.NoError(t, err)
	env.store.PutUser(model.User{Phone: testPhone, Status: model.StatusActive, Role: model.RoleUser})

	_, err = env.otp.VerifyCode(ctx, testPhone, env.sender.code(testPhone), ch.Token, PurposeRegister)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = env.otp.VerifyCode(ctx, "9999999", "123456", ch.Token, PurposeReset)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
