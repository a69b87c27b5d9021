package repository

import (
	"context"
	"sync"
	"time"

	"mirchi_backend/internal/model"
)

// MemoryUserRepository keeps users in process memory. Email and phone
// uniqueness is enforced under the same lock as the insert.
type MemoryUserRepository struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]string
	byPhone map[string]string
}

// NewMemoryUserRepository creates an empty in-memory repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

func copyUser(u *model.User, withPassword bool) *model.User {
	c := *u
	if u.OTP != nil {
		otp := *u.OTP
		c.OTP = &otp
	}
	if u.OTPExpires != nil {
		exp := *u.OTPExpires
		c.OTPExpires = &exp
	}
	if u.FirstName != nil {
		fn := *u.FirstName
		c.FirstName = &fn
	}
	if !withPassword {
		c.PasswordHash = ""
	}
	return &c
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return ErrDuplicateKey
	}
	if _, ok := r.byPhone[user.Phone]; ok {
		return ErrDuplicateKey
	}
	r.byID[user.ID] = copyUser(user, true)
	r.byEmail[user.Email] = user.ID
	r.byPhone[user.Phone] = user.ID
	return nil
}

func (r *MemoryUserRepository) FindByEmailOrPhone(_ context.Context, email, phone string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byEmail[email]; ok {
		return copyUser(r.byID[id], false), nil
	}
	if id, ok := r.byPhone[phone]; ok {
		return copyUser(r.byID[id], false), nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) FindByPhone(_ context.Context, phone string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPhone[phone]; ok {
		return copyUser(r.byID[id], false), nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byID[id]; ok {
		return copyUser(u, false), nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) FindByEmailWithPassword(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byEmail[email]; ok {
		return copyUser(r.byID[id], true), nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) SaveOTP(_ context.Context, id, code string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || u.PhoneVerified {
		return ErrNotUpdated
	}
	u.OTP = &code
	u.OTPExpires = &expires
	u.OTPAttempts = 0
	return nil
}

func (r *MemoryUserRepository) RecordFailedOTP(_ context.Context, id string, maxAttempts int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || u.PhoneVerified || u.OTP == nil {
		return 0, ErrNotUpdated
	}
	u.OTPAttempts++
	if u.OTPAttempts >= maxAttempts {
		u.OTP = nil
		u.OTPExpires = nil
	}
	return u.OTPAttempts, nil
}

func (r *MemoryUserRepository) MarkPhoneVerified(_ context.Context, id, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || u.PhoneVerified || !u.HasValidOTP(now) || *u.OTP != code {
		return ErrNotUpdated
	}
	u.PhoneVerified = true
	u.ClearOTP()
	return nil
}

func (r *MemoryUserRepository) Ping(context.Context) error { return nil }

// Len returns the number of stored users
func (r *MemoryUserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
