package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/storage"
)

// Ensure KVUsers implements UserStorage
var _ UserStorage = (*KVUsers)(nil)

const (
	userKeyPrefix   = "auth-user-"
	userIDKeyPrefix = "auth-user-id-"
)

// KVUsers stores accounts in a key-value backend, for backends that have no
// users table of their own. Each user is a JSON record under its email, with
// an ID index key pointing back to the email.
type KVUsers struct {
	mu      sync.Mutex
	backend storage.Backend
}

// NewKVUsers creates a KVUsers over backend.
func NewKVUsers(backend storage.Backend) *KVUsers {
	return &KVUsers{backend: backend}
}

// CreateUser stores a new user. It fails with ErrEmailExists when the email
// is taken.
func (s *KVUsers) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if _, err := s.backend.Get(ctx, userKeyPrefix+email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to check user: %w", err)
	}

	user.Email = email
	if err := s.put(ctx, user); err != nil {
		return err
	}
	if err := s.backend.Set(ctx, userIDKeyPrefix+user.ID, []byte(email)); err != nil {
		return fmt.Errorf("failed to index user: %w", err)
	}
	return nil
}

// UpdateUser replaces an existing user record.
func (s *KVUsers) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(ctx, userKeyPrefix+models.NormalizeEmail(user.Email))
	if err != nil {
		return err
	}
	if existing == nil || existing.ID != user.ID {
		return fmt.Errorf("user %s: %w", user.ID, models.ErrNotFound)
	}
	return s.put(ctx, user)
}

// GetUserByEmail returns the user with the given email, or nil.
func (s *KVUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.get(ctx, userKeyPrefix+models.NormalizeEmail(email))
}

// GetUserByID returns the user with the given ID, or nil.
func (s *KVUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	email, err := s.backend.Get(ctx, userIDKeyPrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return s.get(ctx, userKeyPrefix+string(email))
}

func (s *KVUsers) get(ctx context.Context, key string) (*models.User, error) {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, &storage.DecodeError{Key: key, Err: err}
	}
	return &user, nil
}

func (s *KVUsers) put(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.backend.Set(ctx, userKeyPrefix+user.Email, data); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
