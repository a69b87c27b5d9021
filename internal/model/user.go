package model

import (
	"fmt"
	"strings"
	"time"

	"mirchi_backend/internal/utils"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultOTPTTL is how long an issued code stays valid
const DefaultOTPTTL = 10 * time.Minute

// User represents an account in the directory
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	FirstName     *string    `json:"firstName,omitempty"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"` // Do not expose password hash in JSON responses
	Role          string     `json:"role"`
	Phone         string     `json:"phone"`
	PhoneVerified bool       `json:"phoneVerified"`
	OTP           *string    `json:"-"`
	OTPExpires    *time.Time `json:"-"`
	OTPAttempts   int        `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims a phone number
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// SetPassword replaces the stored hash with the hash of plain
func (u *User) SetPassword(plain string) error {
	hash, err := utils.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// MatchPassword reports whether plain matches the stored hash
func (u *User) MatchPassword(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return utils.CheckPasswordHash(plain, u.PasswordHash)
}

// SetOTP issues a fresh code valid for ttl from now and returns it for
// out-of-band delivery. The caller persists the record.
func (u *User) SetOTP(now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	code, err := utils.GenerateOTP()
	if err != nil {
		return "", err
	}
	expires := now.Add(ttl)
	u.OTP = &code
	u.OTPExpires = &expires
	u.OTPAttempts = 0
	return code, nil
}

// HasValidOTP reports whether a code is pending and not yet expired at now
func (u *User) HasValidOTP(now time.Time) bool {
	if u.OTP == nil || *u.OTP == "" || u.OTPExpires == nil {
		return false
	}
	return u.OTPExpires.After(now)
}

// ClearOTP drops the pending code and its attempt counter
func (u *User) ClearOTP() {
	u.OTP = nil
	u.OTPExpires = nil
	u.OTPAttempts = 0
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name      string  `json:"name" binding:"required"`
	FirstName *string `json:"firstName"`
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=4"`
	Phone     string  `json:"phone" binding:"required"`
	Role      string  `json:"role" binding:"omitempty,oneof=user admin"`
}

// VerifyOTPRequest is the body of POST /auth/verify-otp
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// ResendOTPRequest is the body of POST /auth/resend-otp
type ResendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
