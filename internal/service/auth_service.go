package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mirchi_backend/internal/metrics"
	"mirchi_backend/internal/model"
	"mirchi_backend/internal/repository"
	"mirchi_backend/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxOTPAttempts is the number of wrong guesses allowed per code
const DefaultMaxOTPAttempts = 5

// OTPSender delivers a code to a phone out of band
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	GenerateToken(userID string, role string) (string, error)
}

// AuthConfig holds the tunables of the phone verification flow
type AuthConfig struct {
	OTPTTL            time.Duration
	MaxOTPAttempts    int
	InitialAdminPhone string
}

// RegisterInput carries the registration fields after request validation
type RegisterInput struct {
	Name      string
	FirstName *string
	Email     string
	Password  string
	Phone     string
	Role      string
}

// AuthService provides authentication related services
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, string, error)
	VerifyOTP(ctx context.Context, phone, code string) (*model.User, string, error)
	ResendOTP(ctx context.Context, phone string) error
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
	sender   OTPSender
	cfg      AuthConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, tokens TokenIssuer, sender OTPSender, cfg AuthConfig, log *zap.Logger) AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = model.DefaultOTPTTL
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = DefaultMaxOTPAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		sender:   sender,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Register creates an unverified account and sends its first OTP
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	email := model.NormalizeEmail(in.Email)
	phone := model.NormalizePhone(in.Phone)
	if phone == "" {
		return nil, "", ErrPhoneRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, "", ErrNameRequired
	}

	// The unique indexes are the real guard; this lookup only gives a
	// friendlier error before hashing.
	existingUser, err := s.userRepo.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, "", NewInternalError(fmt.Errorf("failed to check existing user: %w", err))
	}
	if existingUser != nil {
		return nil, "", ErrUserAlreadyExists
	}

	userRole := model.RoleUser
	if s.cfg.InitialAdminPhone != "" && phone == s.cfg.InitialAdminPhone {
		userRole = model.RoleAdmin
		s.log.Info("registering initial admin", zap.String("phone", phone))
	} else if in.Role == model.RoleAdmin {
		s.log.Warn("admin role requested at registration, downgraded to user", zap.String("phone", phone))
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		FirstName: in.FirstName,
		Email:     email,
		Role:      userRole,
		Phone:     phone,
		CreatedAt: s.now().UTC(),
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, "", NewInternalError(err)
	}
	code, err := user.SetOTP(s.now(), s.cfg.OTPTTL)
	if err != nil {
		return nil, "", NewInternalError(err)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, "", ErrUserAlreadyExists
		}
		return nil, "", NewInternalError(fmt.Errorf("failed to create user in repository: %w", err))
	}
	metrics.RecordRegistration()

	s.deliverOTP(ctx, user.Phone, code)

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.log.Error("user created, but failed to generate token", zap.String("user_id", user.ID), zap.Error(err))
		return user, "", NewInternalError(fmt.Errorf("user created, but failed to generate token: %w", err))
	}

	return user, token, nil
}

// VerifyOTP checks code against the pending OTP of the phone's account
func (s *authService) VerifyOTP(ctx context.Context, phone, code string) (*model.User, string, error) {
	phone = model.NormalizePhone(phone)
	if phone == "" {
		return nil, "", ErrPhoneRequired
	}
	now := s.now()

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, "", NewInternalError(err)
	}
	if user == nil {
		metrics.RecordOTPVerification("not_found")
		return nil, "", ErrUserNotFound
	}
	if user.PhoneVerified {
		metrics.RecordOTPVerification("already_verified")
		return nil, "", ErrAlreadyVerified
	}
	if !user.HasValidOTP(now) {
		metrics.RecordOTPVerification("expired")
		return nil, "", ErrOTPExpired
	}

	if *user.OTP != code {
		return nil, "", s.rejectOTP(ctx, user)
	}

	if err := s.userRepo.MarkPhoneVerified(ctx, user.ID, code, now); err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			// Lost a race with a concurrent verify or resend
			return nil, "", s.currentOTPState(ctx, phone)
		}
		return nil, "", NewInternalError(err)
	}
	user.PhoneVerified = true
	user.ClearOTP()
	metrics.RecordOTPVerification("success")

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", NewInternalError(fmt.Errorf("failed to generate token: %w", err))
	}
	return user, token, nil
}

func (s *authService) rejectOTP(ctx context.Context, user *model.User) error {
	attempts, err := s.userRepo.RecordFailedOTP(ctx, user.ID, s.cfg.MaxOTPAttempts)
	if err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			metrics.RecordOTPVerification("expired")
			return ErrOTPExpired
		}
		return NewInternalError(err)
	}
	if attempts >= s.cfg.MaxOTPAttempts {
		s.log.Warn("otp locked after too many attempts", zap.String("user_id", user.ID), zap.Int("attempts", attempts))
		metrics.RecordOTPVerification("locked")
		return ErrOTPLocked
	}
	metrics.RecordOTPVerification("invalid")
	return ErrInvalidOTP
}

// currentOTPState re-reads the record to explain why a conditional write
// did not apply
func (s *authService) currentOTPState(ctx context.Context, phone string) error {
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return NewInternalError(err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.PhoneVerified {
		return ErrAlreadyVerified
	}
	if !user.HasValidOTP(s.now()) {
		return ErrOTPExpired
	}
	return ErrInvalidOTP
}

// ResendOTP issues and sends a fresh code to an unverified phone
func (s *authService) ResendOTP(ctx context.Context, phone string) error {
	phone = model.NormalizePhone(phone)
	if phone == "" {
		return ErrPhoneRequired
	}

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return NewInternalError(err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.PhoneVerified {
		return ErrAlreadyVerified
	}

	code, err := user.SetOTP(s.now(), s.cfg.OTPTTL)
	if err != nil {
		return NewInternalError(err)
	}
	if err := s.userRepo.SaveOTP(ctx, user.ID, code, *user.OTPExpires); err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			return ErrAlreadyVerified
		}
		return NewInternalError(err)
	}

	s.deliverOTP(ctx, user.Phone, code)
	return nil
}

// Login authenticates a user by email and password and returns a token
func (s *authService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmailWithPassword(ctx, model.NormalizeEmail(email))
	if err != nil {
		return nil, "", NewInternalError(fmt.Errorf("error finding user by email: %w", err))
	}
	if user == nil || !user.MatchPassword(password) {
		metrics.RecordLogin(false)
		return nil, "", ErrInvalidCredentials
	}
	metrics.RecordLogin(true)

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", NewInternalError(fmt.Errorf("failed to generate token: %w", err))
	}
	user.PasswordHash = ""
	return user, token, nil
}

// GetUser loads a user by id
func (s *authService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, NewInternalError(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// deliverOTP hands the code to the sender. Delivery failures are logged and
// never fail the request.
func (s *authService) deliverOTP(ctx context.Context, phone, code string) {
	if s.sender == nil {
		return
	}
	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		metrics.RecordOTPSent(false)
		s.log.Error("failed to hand otp to sms sender", zap.String("phone", phone), zap.Error(err))
		return
	}
	metrics.RecordOTPSent(true)
}

var _ TokenIssuer = (*utils.JWTUtil)(nil)
