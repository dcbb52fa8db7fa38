package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/credentials"
	"account-service/internal/logging"
	"account-service/internal/user"
)

type fakeUserStore struct {
	mu     sync.Mutex
	users  map[int64]*user.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*user.User), nextID: 1}
}

func (f *fakeUserStore) Create(ctx context.Context, params user.NewUserParams) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == params.Email {
			return nil, user.ErrDuplicateEmail
		}
	}
	token := params.VerificationToken
	expires := params.VerificationTokenExpires
	u := &user.User{
		ID:                       f.nextID,
		FirstName:                params.FirstName,
		LastName:                 params.LastName,
		Email:                    params.Email,
		PasswordHash:             params.PasswordHash,
		VerificationToken:        &token,
		VerificationTokenExpires: &expires,
		CreatedAt:                time.Now(),
		UpdatedAt:                time.Now(),
	}
	f.users[u.ID] = u
	f.nextID++
	return u, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) GetByVerificationToken(ctx context.Context, token string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) MarkAsVerified(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.IsVerified = true
	u.VerificationToken = nil
	u.VerificationTokenExpires = nil
	return nil
}

func (f *fakeUserStore) UpdateVerificationToken(ctx context.Context, userID int64, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.VerificationToken = &token
	u.VerificationTokenExpires = &expires
	return nil
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeRefreshRepo struct {
	mu      sync.Mutex
	tokens  map[string]*RefreshToken
	revoked map[string]bool
	byUser  map[int64][]string
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{
		tokens:  make(map[string]*RefreshToken),
		revoked: make(map[string]bool),
		byUser:  make(map[int64][]string),
	}
}

func (f *fakeRefreshRepo) StoreRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = &RefreshToken{UserID: userID, TokenHash: hashToken(token), ExpiresAt: expiresAt, CreatedAt: time.Now()}
	f.byUser[userID] = append(f.byUser[userID], token)
	return nil
}

func (f *fakeRefreshRepo) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked[token] {
		return nil, ErrRefreshTokenRevoked
	}
	rt, ok := f.tokens[token]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	if rt.IsExpired() {
		return nil, ErrRefreshTokenExpired
	}
	return rt, nil
}

func (f *fakeRefreshRepo) RevokeRefreshToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token]; !ok {
		return ErrRefreshTokenNotFound
	}
	f.revoked[token] = true
	return nil
}

func (f *fakeRefreshRepo) RevokeAllUserTokens(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.byUser[userID] {
		f.revoked[token] = true
	}
	return nil
}

type fakeResetRepo struct {
	mu     sync.Mutex
	tokens map[string]int64
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: make(map[string]int64)}
}

func (f *fakeResetRepo) StorePasswordResetToken(ctx context.Context, userID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = userID
	return nil
}

func (f *fakeResetRepo) GetPasswordResetToken(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return 0, ErrPasswordResetTokenNotFound
}

func (f *fakeResetRepo) DeletePasswordResetToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

// spyEmailService records sends on a channel so tests can wait for the
// async goroutine without sleeping.
type spyEmailService struct {
	verificationSent chan string
	resetSent        chan string
}

func newSpyEmailService() *spyEmailService {
	return &spyEmailService{
		verificationSent: make(chan string, 8),
		resetSent:        make(chan string, 8),
	}
}

func (s *spyEmailService) SendVerificationEmail(ctx context.Context, toEmail, token string) error {
	s.verificationSent <- toEmail
	return nil
}

func (s *spyEmailService) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	s.resetSent <- toEmail
	return nil
}

func waitForEmail(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case addr := <-ch:
		return addr
	case <-time.After(2 * time.Second):
		t.Fatal("no email sent within timeout")
		return ""
	}
}

func assertNoEmail(t *testing.T, ch chan string) {
	t.Helper()
	select {
	case addr := <-ch:
		t.Fatalf("unexpected email sent to %s", addr)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeTokenService struct{}

func (fakeTokenService) CreateToken(userID int64, email string, duration time.Duration) (string, error) {
	return "access-token", nil
}

func (fakeTokenService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	return nil, ErrInvalidToken
}

type serviceEnv struct {
	service *Service
	store   *fakeUserStore
	refresh *fakeRefreshRepo
	reset   *fakeResetRepo
	email   *spyEmailService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	store := newFakeUserStore()
	refresh := newFakeRefreshRepo()
	reset := newFakeResetRepo()
	email := newSpyEmailService()
	svc := NewService(
		store,
		refresh,
		reset,
		fakeTokenService{},
		email,
		logging.NewLogger(true),
		time.Hour,
		7*24*time.Hour,
		24*time.Hour,
	)
	return &serviceEnv{service: svc, store: store, refresh: refresh, reset: reset, email: email}
}

func (e *serviceEnv) registerVerified(t *testing.T, email, password string) *user.User {
	t.Helper()
	u, err := e.service.Register(context.Background(), "Ada", "Obi", email, password)
	require.NoError(t, err)
	waitForEmail(t, e.email.verificationSent)
	require.NoError(t, e.store.MarkAsVerified(context.Background(), u.ID))
	return u
}

func TestRegister(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, "Ada", "Obi", "Ada@Example.COM ", "sup3rsecret")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", u.Email, "email should be normalized before storage")
	assert.NotEqual(t, "sup3rsecret", u.PasswordHash, "plaintext password must never be stored")
	assert.False(t, u.IsVerified)
	require.NotNil(t, u.VerificationToken)
	assert.NotEmpty(t, *u.VerificationToken)
	require.NotNil(t, u.VerificationTokenExpires)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *u.VerificationTokenExpires, time.Minute)

	assert.Equal(t, "ada@example.com", waitForEmail(t, env.email.verificationSent))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, err := env.service.Register(ctx, "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)

	_, err = env.service.Register(ctx, "Other", "Person", "ADA@example.com", "differentpass")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
	assertNoEmail(t, env.email.verificationSent)
}

func TestRegisterInvalidEmail(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.Register(context.Background(), "Ada", "Obi", "not-an-email", "sup3rsecret")
	assert.ErrorIs(t, err, ErrInvalidEmailFormat)
}

func TestLogin(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	tokens, err := env.service.Login(ctx, "ADA@example.com", "sup3rsecret")
	require.NoError(t, err)
	assert.Equal(t, "access-token", tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(3600), tokens.ExpiresIn)
}

func TestLoginCredentialErrorsAreUniform(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	_, unknownErr := env.service.Login(ctx, "nobody@example.com", "sup3rsecret")
	_, wrongPassErr := env.service.Login(ctx, "ada@example.com", "wrongpassword")

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPassErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongPassErr.Error(),
		"unknown email and wrong password must be indistinguishable")
}

func TestLoginUnverifiedEmail(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, err := env.service.Register(ctx, "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)

	_, err = env.service.Login(ctx, "ada@example.com", "sup3rsecret")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestVerifyEmail(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)
	token := *u.VerificationToken

	require.NoError(t, env.service.VerifyEmail(ctx, token))

	verified, err := env.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Nil(t, verified.VerificationToken, "consumed token must be cleared")

	// The token is single use
	assert.ErrorIs(t, env.service.VerifyEmail(ctx, token), ErrInvalidVerificationToken)
}

func TestVerifyEmailRejectionIsUniform(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)

	expired := time.Now().Add(-time.Minute)
	env.store.mu.Lock()
	env.store.users[u.ID].VerificationTokenExpires = &expired
	env.store.mu.Unlock()

	expiredErr := env.service.VerifyEmail(ctx, *u.VerificationToken)
	unknownErr := env.service.VerifyEmail(ctx, "no-such-token")

	assert.ErrorIs(t, expiredErr, ErrInvalidVerificationToken)
	assert.ErrorIs(t, unknownErr, ErrInvalidVerificationToken)
	assert.Equal(t, expiredErr.Error(), unknownErr.Error(),
		"expired and unknown tokens must be indistinguishable")

	stillUnverified, err := env.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stillUnverified.IsVerified)
}

func TestRefreshAccessTokenRotates(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	tokens, err := env.service.Login(ctx, "ada@example.com", "sup3rsecret")
	require.NoError(t, err)

	rotated, err := env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old token cannot be replayed after rotation
	_, err = env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRefreshAccessTokenUnknown(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.RefreshAccessToken(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResendVerificationEmail(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)
	oldToken := *u.VerificationToken

	require.NoError(t, env.service.ResendVerificationEmail(ctx, "ada@example.com"))
	waitForEmail(t, env.email.verificationSent)

	refreshed, err := env.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.VerificationToken)
	assert.NotEqual(t, oldToken, *refreshed.VerificationToken, "resend must rotate the token")

	// The superseded token no longer verifies
	assert.ErrorIs(t, env.service.VerifyEmail(ctx, oldToken), ErrInvalidVerificationToken)
}

func TestResendVerificationEmailEnumerationResistance(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	assert.NoError(t, env.service.ResendVerificationEmail(ctx, "nobody@example.com"))
	assert.NoError(t, env.service.ResendVerificationEmail(ctx, "ada@example.com"),
		"already verified accounts get the same silent success")
	assertNoEmail(t, env.email.verificationSent)
}

func TestRequestPasswordReset(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	require.NoError(t, env.service.RequestPasswordReset(ctx, "ada@example.com"))
	assert.Equal(t, "ada@example.com", waitForEmail(t, env.email.resetSent))

	require.NoError(t, env.service.RequestPasswordReset(ctx, "nobody@example.com"))
	assertNoEmail(t, env.email.resetSent)
}

func TestResetPassword(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	u := env.registerVerified(t, "ada@example.com", "sup3rsecret")

	tokens, err := env.service.Login(ctx, "ada@example.com", "sup3rsecret")
	require.NoError(t, err)

	require.NoError(t, env.service.RequestPasswordReset(ctx, "ada@example.com"))
	waitForEmail(t, env.email.resetSent)

	env.reset.mu.Lock()
	var resetToken string
	for token := range env.reset.tokens {
		resetToken = token
	}
	env.reset.mu.Unlock()
	require.NotEmpty(t, resetToken)

	require.NoError(t, env.service.ResetPassword(ctx, resetToken, "newpassword1"))

	updated, err := env.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, credentials.VerifyPassword(updated.PasswordHash, "sup3rsecret"))
	assert.True(t, credentials.VerifyPassword(updated.PasswordHash, "newpassword1"))

	// Sessions issued under the old password are dead
	_, err = env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// The reset token is single use
	err = env.service.ResetPassword(ctx, resetToken, "anotherpass2")
	assert.ErrorIs(t, err, ErrPasswordResetTokenNotFound)
}

func TestResetPasswordInvalidToken(t *testing.T) {
	env := newServiceEnv(t)

	err := env.service.ResetPassword(context.Background(), "bogus", "newpassword1")
	assert.ErrorIs(t, err, ErrPasswordResetTokenNotFound)
}
