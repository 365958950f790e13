package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

const (
	OtpLength       = 6
	OtpExpiryWindow = 10 * time.Minute
	MaxOtpResends   = 3
	// MaxOtpAttempts caps wrong guesses against one issued code.
	MaxOtpAttempts = 5
)

// OtpPolicy carries the OTP constants so deployments can tune them.
type OtpPolicy struct {
	Length      int
	TTL         time.Duration
	MaxResends  int
	MaxAttempts int
}

func DefaultOtpPolicy() OtpPolicy {
	return OtpPolicy{Length: OtpLength, TTL: OtpExpiryWindow, MaxResends: MaxOtpResends, MaxAttempts: MaxOtpAttempts}
}

// GenerateOtp returns a numeric code of OtpLength digits.
func GenerateOtp() (string, error) {
	return GenerateOtpN(OtpLength)
}

// GenerateOtpN draws every digit independently from crypto/rand.
func GenerateOtpN(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid otp length %d", length)
	}
	ten := big.NewInt(10)
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// OtpMatches is an exact, case-sensitive, constant-time comparison.
func OtpMatches(supplied, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}
