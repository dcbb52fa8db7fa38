package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"account-service/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, params NewUserParams) (*User, error) {
	dbUser := &database.User{
		FirstName:                params.FirstName,
		LastName:                 params.LastName,
		Email:                    params.Email,
		PasswordHash:             params.PasswordHash,
		VerificationToken:        &params.VerificationToken,
		VerificationTokenExpires: &params.VerificationTokenExpires,
		IsVerified:               false,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByVerificationToken retrieves an unverified user by verification token
func (r *Repository) GetByVerificationToken(ctx context.Context, token string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("verification_token = ?", token).
		Where("is_verified = ?", false).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by verification token: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// MarkAsVerified marks a user as verified and clears the token fields, so a
// consumed token can never verify another account.
func (r *Repository) MarkAsVerified(ctx context.Context, userID int64) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("is_verified = ?", true).
		Set("verification_token = ?", nil).
		Set("verification_token_expires = ?", nil).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark user as verified: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdatePassword replaces a user's password hash as a whole.
func (r *Repository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdateVerificationToken rotates the verification token for a resend.
func (r *Repository) UpdateVerificationToken(ctx context.Context, userID int64, token string, expires time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verification_token = ?", token).
		Set("verification_token_expires = ?", expires).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Where("is_verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update verification token: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdateProfile applies a typed partial update. Only non-nil fields are
// written; callers must reject an empty update before reaching here.
func (r *Repository) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (*User, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("profile update carries no fields")
	}

	q := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("updated_at = NOW()").
		Where("id = ?", userID)

	if update.FirstName != nil {
		q = q.Set("first_name = ?", *update.FirstName)
	}
	if update.LastName != nil {
		q = q.Set("last_name = ?", *update.LastName)
	}
	if update.Phone != nil {
		q = q.Set("phone = ?", *update.Phone)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, userID)
}

// UpdateKYC stores the BVN and selfie reference and flips kyc_verified.
func (r *Repository) UpdateKYC(ctx context.Context, userID int64, bvn, selfieURL string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("bvn = ?", bvn).
		Set("selfie_url = ?", selfieURL).
		Set("kyc_verified = ?", true).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update kyc fields: %w", err)
	}

	return checkRowsAffected(result)
}

// Delete removes a user row.
func (r *Repository) Delete(ctx context.Context, userID int64) error {
	result, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return checkRowsAffected(result)
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                       dbu.ID,
		FirstName:                dbu.FirstName,
		LastName:                 dbu.LastName,
		Email:                    dbu.Email,
		Phone:                    dbu.Phone,
		PasswordHash:             dbu.PasswordHash,
		IsVerified:               dbu.IsVerified,
		VerificationToken:        dbu.VerificationToken,
		VerificationTokenExpires: dbu.VerificationTokenExpires,
		BVN:                      dbu.BVN,
		SelfieURL:                dbu.SelfieURL,
		KYCVerified:              dbu.KYCVerified,
		CreatedAt:                dbu.CreatedAt,
		UpdatedAt:                dbu.UpdatedAt,
	}
}
