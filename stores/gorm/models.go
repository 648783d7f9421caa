package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	authkit "github.com/threatwatch/authkit"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// CredentialModel is the GORM model for user credential records
type CredentialModel struct {
	ID                 string      `gorm:"size:64;uniqueIndex"`
	Email              string      `gorm:"primaryKey;size:320"`
	Name               string      `gorm:"size:255"`
	PasswordHash       string      `gorm:"size:255"`
	NeedsPasswordSetup bool        `gorm:"default:false"`
	EmailVerified      bool        `gorm:"default:false"`
	EmailVerifiedAt    *time.Time
	OTPHash            string     `gorm:"size:255"`
	OTPExpiresAt       *time.Time
	OTPVerified        bool        `gorm:"default:false"`
	RefreshTokens      StringSlice `gorm:"type:jsonb"`
	IsOAuthUser        bool        `gorm:"default:false"`
	OAuthProvider      string      `gorm:"size:64"`
	CreatedAt          time.Time   `gorm:"autoCreateTime"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime"`
}

func (CredentialModel) TableName() string {
	return "users"
}

func (m *CredentialModel) ToUser() *authkit.User {
	return &authkit.User{
		ID:                 m.ID,
		Email:              m.Email,
		Name:               m.Name,
		PasswordHash:       m.PasswordHash,
		NeedsPasswordSetup: m.NeedsPasswordSetup,
		EmailVerified:      m.EmailVerified,
		EmailVerifiedAt:    m.EmailVerifiedAt,
		OTPHash:            m.OTPHash,
		OTPExpiresAt:       m.OTPExpiresAt,
		OTPVerified:        m.OTPVerified,
		RefreshTokens:      append([]string(nil), m.RefreshTokens...),
		IsOAuthUser:        m.IsOAuthUser,
		OAuthProvider:      m.OAuthProvider,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func UserToModel(u *authkit.User) *CredentialModel {
	return &CredentialModel{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		PasswordHash:       u.PasswordHash,
		NeedsPasswordSetup: u.NeedsPasswordSetup,
		EmailVerified:      u.EmailVerified,
		EmailVerifiedAt:    u.EmailVerifiedAt,
		OTPHash:            u.OTPHash,
		OTPExpiresAt:       u.OTPExpiresAt,
		OTPVerified:        u.OTPVerified,
		RefreshTokens:      StringSlice(append([]string(nil), u.RefreshTokens...)),
		IsOAuthUser:        u.IsOAuthUser,
		OAuthProvider:      u.OAuthProvider,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}
