// Package gorm implements the durable CredentialStore over a GORM-managed
// database (Postgres in production, SQLite in tests and the demo).
package gorm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	authkit "github.com/threatwatch/authkit"
)

// AutoMigrate runs database migrations for the credential tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialModel{})
}

// CredentialStore implements authkit.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// wrapUnavailable tags backend transport/driver failures so callers can
// detect them with errors.Is(err, authkit.ErrStoreUnavailable) and fail over.
func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, authkit.ErrStoreUnavailable, err)
}

func (s *CredentialStore) FindByEmail(email string) (*authkit.User, error) {
	var model CredentialModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authkit.ErrUserNotFound
		}
		return nil, wrapUnavailable("find user", err)
	}
	return model.ToUser(), nil
}

func (s *CredentialStore) Create(user *authkit.User) (*authkit.User, error) {
	model := UserToModel(user)
	if err := s.db.Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateErr(err) {
			return nil, authkit.ErrEmailExists
		}
		return nil, wrapUnavailable("create user", err)
	}
	return model.ToUser(), nil
}

func (s *CredentialStore) Save(user *authkit.User) error {
	if err := s.db.Save(UserToModel(user)).Error; err != nil {
		return wrapUnavailable("save user", err)
	}
	return nil
}

func (s *CredentialStore) ConsumeOTP(email, otpHash string, markVerified bool) (*authkit.User, error) {
	// Compare-and-clear in a single UPDATE: the WHERE clause on otp_hash
	// guarantees at most one of two racing consumers succeeds.
	res := s.db.Model(&CredentialModel{}).
		Where("email = ? AND otp_hash = ? AND otp_hash <> ''", email, otpHash).
		Updates(map[string]any{
			"otp_hash":       "",
			"otp_expires_at": nil,
			"otp_verified":   markVerified,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return nil, wrapUnavailable("consume otp", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, authkit.ErrNoChallenge
	}
	return s.FindByEmail(email)
}

// isDuplicateErr detects unique-constraint violations on drivers that don't
// translate them to gorm.ErrDuplicatedKey.
func isDuplicateErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
