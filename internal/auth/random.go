package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateToken returns 32 random bytes as hex. Used for remember/verify tokens and as a throwaway
// session fingerprint.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateOTPCode returns a uniformly random zero-padded numeric code of otpLength digits
func generateOTPCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}
