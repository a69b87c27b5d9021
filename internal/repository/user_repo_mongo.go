package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mirchi_backend/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDocument struct {
	ID            string     `bson:"_id"`
	Name          string     `bson:"name"`
	FirstName     *string    `bson:"firstName,omitempty"`
	Email         string     `bson:"email"`
	Password      string     `bson:"password,omitempty"`
	Role          string     `bson:"role"`
	Phone         string     `bson:"phone"`
	PhoneVerified bool       `bson:"phoneVerified"`
	OTP           *string    `bson:"otp,omitempty"`
	OTPExpires    *time.Time `bson:"otpExpires,omitempty"`
	OTPAttempts   int        `bson:"otpAttempts"`
	CreatedAt     time.Time  `bson:"createdAt"`
}

func toDocument(u *model.User) userDocument {
	return userDocument{
		ID:            u.ID,
		Name:          u.Name,
		FirstName:     u.FirstName,
		Email:         u.Email,
		Password:      u.PasswordHash,
		Role:          u.Role,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
		OTP:           u.OTP,
		OTPExpires:    u.OTPExpires,
		OTPAttempts:   u.OTPAttempts,
		CreatedAt:     u.CreatedAt,
	}
}

func (d userDocument) toModel() *model.User {
	u := &model.User{
		ID:            d.ID,
		Name:          d.Name,
		FirstName:     d.FirstName,
		Email:         d.Email,
		PasswordHash:  d.Password,
		Role:          d.Role,
		Phone:         d.Phone,
		PhoneVerified: d.PhoneVerified,
		OTP:           d.OTP,
		OTPExpires:    d.OTPExpires,
		OTPAttempts:   d.OTPAttempts,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	if u.OTPExpires != nil {
		t := u.OTPExpires.UTC()
		u.OTPExpires = &t
	}
	return u
}

// the password hash is excluded unless explicitly asked for
var withoutPassword = bson.D{{Key: "password", Value: 0}}

type mongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository creates a UserRepository backed by a Mongo collection
func NewMongoUserRepository(coll *mongo.Collection) UserRepository {
	return &mongoUserRepository{coll: coll}
}

// EnsureUserIndexes creates the unique email and phone indexes
func EnsureUserIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true).SetName("phone_unique")},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) Create(ctx context.Context, user *model.User) error {
	_, err := r.coll.InsertOne(ctx, toDocument(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M, withPassword bool) (*model.User, error) {
	opts := options.FindOne()
	if !withPassword {
		opts.SetProjection(withoutPassword)
	}
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *mongoUserRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"$or": bson.A{bson.M{"email": email}, bson.M{"phone": phone}}}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email or phone: %w", err)
	}
	return user, nil
}

func (r *mongoUserRepository) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"phone": phone}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"_id": id}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

func (r *mongoUserRepository) FindByEmailWithPassword(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"email": email}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

func (r *mongoUserRepository) SaveOTP(ctx context.Context, id, code string, expires time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "phoneVerified": false},
		bson.M{"$set": bson.M{"otp": code, "otpExpires": expires, "otpAttempts": 0}},
	)
	if err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotUpdated
	}
	return nil
}

// RecordFailedOTP increments the counter in one atomic write and, when the
// counter reached maxAttempts, unsets the code with a second conditional write
func (r *mongoUserRepository) RecordFailedOTP(ctx context.Context, id string, maxAttempts int) (int, error) {
	var doc userDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "phoneVerified": false, "otp": bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{"otpAttempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(withoutPassword),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotUpdated
		}
		return 0, fmt.Errorf("failed to record otp attempt: %w", err)
	}
	if doc.OTPAttempts >= maxAttempts {
		_, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": id, "otpAttempts": bson.M{"$gte": maxAttempts}},
			bson.M{"$unset": bson.M{"otp": "", "otpExpires": ""}},
		)
		if err != nil {
			return doc.OTPAttempts, fmt.Errorf("failed to clear exhausted otp: %w", err)
		}
	}
	return doc.OTPAttempts, nil
}

func (r *mongoUserRepository) MarkPhoneVerified(ctx context.Context, id, code string, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "phoneVerified": false, "otp": code, "otpExpires": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"phoneVerified": true, "otpAttempts": 0},
			"$unset": bson.M{"otp": "", "otpExpires": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotUpdated
	}
	return nil
}

func (r *mongoUserRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}
