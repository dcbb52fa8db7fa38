package auth

import (
	"context"
	"time"

	"account-service/internal/user"
)

// TokenService defines the interface for access token creation and validation.
type TokenService interface {
	CreateToken(userID int64, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// UserStore is the slice of the user repository the auth service depends on.
type UserStore interface {
	Create(ctx context.Context, params user.NewUserParams) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*user.User, error)
	MarkAsVerified(ctx context.Context, userID int64) error
	UpdateVerificationToken(ctx context.Context, userID int64, token string, expires time.Time) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

// RefreshTokenRepository defines the interface for refresh token storage
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID int64) error
}

// ResetTokenRepository defines the interface for password reset token storage.
type ResetTokenRepository interface {
	StorePasswordResetToken(ctx context.Context, userID int64, token string) error
	GetPasswordResetToken(ctx context.Context, token string) (int64, error)
	DeletePasswordResetToken(ctx context.Context, token string) error
}

// EmailService defines the interface for email operations
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// RateLimiter guards the abuse-prone public endpoints.
type RateLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequest(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}
