// Package account implements the authenticated account operations: profile
// reads and updates, password change, account deletion, and KYC submission.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"

	"account-service/internal/credentials"
	"account-service/internal/logging"
	"account-service/internal/user"
)

var (
	ErrWrongPassword    = errors.New("password is incorrect")
	ErrNoFieldsToUpdate = errors.New("no fields to update")
	ErrInvalidBVN       = errors.New("bvn must be exactly 11 digits")
	ErrMissingSelfie    = errors.New("selfie file is required")
)

// UserStore is the slice of the user repository the account service depends on.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateProfile(ctx context.Context, userID int64, update user.ProfileUpdate) (*user.User, error)
	UpdateKYC(ctx context.Context, userID int64, bvn, selfieURL string) error
	Delete(ctx context.Context, userID int64) error
}

// SessionRevoker invalidates all of a user's refresh tokens.
type SessionRevoker interface {
	RevokeAllUserTokens(ctx context.Context, userID int64) error
}

// Selfie is an uploaded selfie image, validated before it reaches storage.
type Selfie struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// SelfieStore persists a selfie externally and returns a durable URL.
type SelfieStore interface {
	StoreSelfie(ctx context.Context, userID int64, selfie Selfie) (string, error)
}

// Service handles the authenticated account lifecycle operations.
type Service struct {
	userStore   UserStore
	sessions    SessionRevoker
	selfieStore SelfieStore
	logger      *logging.Logger
}

func NewService(userStore UserStore, sessions SessionRevoker, selfieStore SelfieStore, logger *logging.Logger) *Service {
	return &Service{
		userStore:   userStore,
		sessions:    sessions,
		selfieStore: selfieStore,
		logger:      logger,
	}
}

// GetProfile returns the caller's user row.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*user.User, error) {
	return s.userStore.GetByID(ctx, userID)
}

// ChangePassword replaces the caller's password after re-verifying the old
// one. A wrong old password never touches the stored hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	existingUser, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !credentials.VerifyPassword(existingUser.PasswordHash, oldPassword) {
		return ErrWrongPassword
	}

	passwordHash, err := credentials.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userStore.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return err
	}

	// Outstanding sessions die with the old password
	if err := s.sessions.RevokeAllUserTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke user tokens after password change", "user_id", userID, "error", err)
	}

	return nil
}

// UpdateProfile applies a partial update. An update with no fields is
// rejected before any store write is issued.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, update user.ProfileUpdate) (*user.User, error) {
	if update.IsEmpty() {
		return nil, ErrNoFieldsToUpdate
	}

	return s.userStore.UpdateProfile(ctx, userID, update)
}

// DeleteAccount removes the caller's row after re-authenticating with the
// current password.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, password string) error {
	existingUser, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !credentials.VerifyPassword(existingUser.PasswordHash, password) {
		return ErrWrongPassword
	}

	if err := s.userStore.Delete(ctx, userID); err != nil {
		return err
	}

	if err := s.sessions.RevokeAllUserTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke user tokens after account deletion", "user_id", userID, "error", err)
	}

	return nil
}

// SubmitKYC validates the BVN and selfie, stores the selfie externally, then
// records both on the user row. Validation failures happen before the upload
// call, so a rejected submission never reaches storage.
func (s *Service) SubmitKYC(ctx context.Context, userID int64, bvn string, selfie *Selfie) (*user.User, error) {
	if !isValidBVN(bvn) {
		return nil, ErrInvalidBVN
	}
	if selfie == nil || selfie.Size == 0 {
		return nil, ErrMissingSelfie
	}

	selfieURL, err := s.selfieStore.StoreSelfie(ctx, userID, *selfie)
	if err != nil {
		return nil, fmt.Errorf("failed to store selfie: %w", err)
	}

	if err := s.userStore.UpdateKYC(ctx, userID, bvn, selfieURL); err != nil {
		return nil, err
	}

	return s.userStore.GetByID(ctx, userID)
}

func isValidBVN(bvn string) bool {
	if len(bvn) != 11 {
		return false
	}
	for _, r := range bvn {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
