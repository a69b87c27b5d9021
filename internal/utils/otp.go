package utils

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// otpSource is swapped in tests
var otpSource io.Reader = rand.Reader

// GenerateOTP returns a uniformly random 6-digit code in [100000, 999999]
func GenerateOTP() (string, error) {
	n, err := rand.Int(otpSource, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
