package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mirchi_backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateKey is returned by Create when the email or phone is taken
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotUpdated is returned when a conditional update matched no record
	ErrNotUpdated = errors.New("record not updated")
)

// UserRepository defines operations for user data. Lookups return
// (nil, nil) when no record matches.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*model.User, error)
	FindByPhone(ctx context.Context, phone string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmailWithPassword(ctx context.Context, email string) (*model.User, error)
	SaveOTP(ctx context.Context, id, code string, expires time.Time) error
	RecordFailedOTP(ctx context.Context, id string, maxAttempts int) (int, error)
	MarkPhoneVerified(ctx context.Context, id, code string, now time.Time) error
	Ping(ctx context.Context) error
}

// DBTX is the subset of *pgxpool.Pool used by the repository
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const pgUniqueViolation = "23505"

const userColumns = `id, name, first_name, email, role, phone, phone_verified, otp, otp_expires, otp_attempts, created_at`

type userRepository struct {
	db DBTX
}

// NewUserRepository creates a Postgres backed UserRepository
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	sql := `INSERT INTO users (id, name, first_name, email, password_hash, role, phone, phone_verified, otp, otp_expires, otp_attempts, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, sql,
		user.ID, user.Name, user.FirstName, user.Email, user.PasswordHash, user.Role, user.Phone,
		user.PhoneVerified, user.OTP, user.OTPExpires, user.OTPAttempts, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByEmailOrPhone retrieves the first user holding either value
func (r *userRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*model.User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR phone = $2 LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, sql, email, phone))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email or phone: %w", err)
	}
	return user, nil
}

// FindByPhone retrieves a user by their phone number
func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	user, err := scanUser(r.db.QueryRow(ctx, sql, phone))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by their ID
func (r *userRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmailWithPassword retrieves a user and their password hash
func (r *userRepository) FindByEmailWithPassword(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	sql := `SELECT ` + userColumns + `, password_hash FROM users WHERE email = $1`
	err := r.db.QueryRow(ctx, sql, email).Scan(
		&user.ID, &user.Name, &user.FirstName, &user.Email, &user.Role, &user.Phone, &user.PhoneVerified,
		&user.OTP, &user.OTPExpires, &user.OTPAttempts, &user.CreatedAt, &user.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// SaveOTP stores a fresh challenge on an unverified user
func (r *userRepository) SaveOTP(ctx context.Context, id, code string, expires time.Time) error {
	sql := `UPDATE users SET otp = $1, otp_expires = $2, otp_attempts = 0
            WHERE id = $3 AND phone_verified = FALSE`
	cmdTag, err := r.db.Exec(ctx, sql, code, expires, id)
	if err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotUpdated
	}
	return nil
}

// RecordFailedOTP counts a wrong guess and drops the pending code once
// maxAttempts is reached. It returns the new attempt count.
func (r *userRepository) RecordFailedOTP(ctx context.Context, id string, maxAttempts int) (int, error) {
	sql := `UPDATE users SET
                otp_attempts = otp_attempts + 1,
                otp = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp END,
                otp_expires = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_expires END
            WHERE id = $1 AND phone_verified = FALSE AND otp IS NOT NULL
            RETURNING otp_attempts`
	var attempts int
	err := r.db.QueryRow(ctx, sql, id, maxAttempts).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotUpdated
		}
		return 0, fmt.Errorf("failed to record otp attempt: %w", err)
	}
	return attempts, nil
}

// MarkPhoneVerified flips phone_verified and clears the challenge, but only
// while the stored code still equals code and has not expired at now
func (r *userRepository) MarkPhoneVerified(ctx context.Context, id, code string, now time.Time) error {
	sql := `UPDATE users SET phone_verified = TRUE, otp = NULL, otp_expires = NULL, otp_attempts = 0
            WHERE id = $1 AND phone_verified = FALSE AND otp = $2 AND otp_expires > $3`
	cmdTag, err := r.db.Exec(ctx, sql, id, code, now)
	if err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotUpdated
	}
	return nil
}

// Ping checks the database connection
func (r *userRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.FirstName, &user.Email, &user.Role, &user.Phone, &user.PhoneVerified,
		&user.OTP, &user.OTPExpires, &user.OTPAttempts, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
