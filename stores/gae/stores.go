//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	authkit "github.com/threatwatch/authkit"
)

// KindCredential is the Datastore kind for user credentials
const KindCredential = "Credential"

// CredentialStore implements authkit.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *CredentialStore) WithContext(ctx context.Context) *CredentialStore {
	return &CredentialStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *CredentialStore) namespacedKey(email string) *datastore.Key {
	key := datastore.NameKey(KindCredential, email, nil)
	key.Namespace = s.namespace
	return key
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, authkit.ErrStoreUnavailable, err)
}

func (s *CredentialStore) FindByEmail(email string) (*authkit.User, error) {
	key := s.namespacedKey(email)
	var entity CredentialEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, authkit.ErrUserNotFound
		}
		return nil, wrapUnavailable("find user", err)
	}
	return entity.ToUser(), nil
}

func (s *CredentialStore) Create(user *authkit.User) (*authkit.User, error) {
	key := s.namespacedKey(user.Email)
	entity := UserToEntity(user, key)

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing CredentialEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return authkit.ErrEmailExists
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		_, err = tx.Put(key, entity)
		return err
	})
	if err != nil {
		if err == authkit.ErrEmailExists {
			return nil, err
		}
		return nil, wrapUnavailable("create user", err)
	}
	return entity.ToUser(), nil
}

func (s *CredentialStore) Save(user *authkit.User) error {
	key := s.namespacedKey(user.Email)
	if _, err := s.client.Put(s.ctx, key, UserToEntity(user, key)); err != nil {
		return wrapUnavailable("save user", err)
	}
	return nil
}

func (s *CredentialStore) ConsumeOTP(email, otpHash string, markVerified bool) (*authkit.User, error) {
	key := s.namespacedKey(email)
	var consumed CredentialEntity

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity CredentialEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return authkit.ErrUserNotFound
			}
			return err
		}
		if entity.OTPHash == "" || entity.OTPHash != otpHash {
			return authkit.ErrNoChallenge
		}
		entity.OTPHash = ""
		entity.OTPExpiresAt = time.Time{}
		entity.OTPVerified = markVerified
		entity.UpdatedAt = time.Now()
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		consumed = entity
		return nil
	})
	if err != nil {
		if err == authkit.ErrUserNotFound || err == authkit.ErrNoChallenge {
			return nil, err
		}
		return nil, wrapUnavailable("consume otp", err)
	}
	return consumed.ToUser(), nil
}

// CleanupExpiredChallenges clears OTP challenges whose expiry has passed.
// Intended to run from a cron handler; returns the number of users cleaned.
func (s *CredentialStore) CleanupExpiredChallenges(ctx context.Context) (int, error) {
	query := datastore.NewQuery(KindCredential).
		FilterField("otp_expires_at", "<", time.Now()).
		FilterField("otp_expires_at", ">", time.Time{})
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	cleaned := 0
	it := s.client.Run(ctx, query)
	for {
		var entity CredentialEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return cleaned, wrapUnavailable("cleanup challenges", err)
		}
		entity.OTPHash = ""
		entity.OTPExpiresAt = time.Time{}
		entity.OTPVerified = false
		entity.UpdatedAt = time.Now()
		if _, err := s.client.Put(ctx, key, &entity); err != nil {
			return cleaned, wrapUnavailable("cleanup challenges", err)
		}
		cleaned++
	}
	return cleaned, nil
}
