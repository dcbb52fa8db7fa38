package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/httputil"
	"account-service/internal/logging"
)

type fakeLimiter struct {
	ipExceeded    bool
	emailCooldown bool
	err           error
	ipRecorded    int
	cooldownsSet  int
}

func (f *fakeLimiter) CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error) {
	return f.ipExceeded, f.err
}

func (f *fakeLimiter) RecordIPRequest(ctx context.Context, ip, purpose string) error {
	f.ipRecorded++
	return nil
}

func (f *fakeLimiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	return f.emailCooldown, f.err
}

func (f *fakeLimiter) SetEmailCooldown(ctx context.Context, email string) error {
	f.cooldownsSet++
	return nil
}

type handlerEnv struct {
	*serviceEnv
	handler *Handler
	limiter *fakeLimiter
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	env := newServiceEnv(t)
	limiter := &fakeLimiter{}
	return &handlerEnv{
		serviceEnv: env,
		handler:    NewHandler(env.service, limiter, logging.NewLogger(true)),
		limiter:    limiter,
	}
}

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRegisterHandler(t *testing.T) {
	env := newHandlerEnv(t)

	body := `{"first_name":"Ada","last_name":"Obi","email":"ada@example.com","password":"sup3rsecret"}`
	rec := postJSON(env.handler.Register, "/register", body)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp RegisterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.False(t, resp.User.IsVerified)
	assert.NotContains(t, rec.Body.String(), "password_hash", "hashes must never leave the API")
	waitForEmail(t, env.email.verificationSent)
}

func TestRegisterHandlerValidation(t *testing.T) {
	env := newHandlerEnv(t)

	body := `{"first_name":"A","last_name":"Obi","email":"not-an-email","password":"short"}`
	rec := postJSON(env.handler.Register, "/register", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := errorBody(t, rec)
	assert.Equal(t, httputil.CodeValidationFailed, resp.Code)

	fields := make(map[string]bool)
	for _, f := range resp.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["first_name"])
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])
	assertNoEmail(t, env.email.verificationSent)
}

func TestRegisterHandlerDuplicate(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	body := `{"first_name":"Other","last_name":"Person","email":"ada@example.com","password":"differentpass"}`
	rec := postJSON(env.handler.Register, "/register", body)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httputil.CodeEmailAlreadyExists, errorBody(t, rec).Code)
}

func TestLoginHandler(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	rec := postJSON(env.handler.Login, "/login", `{"email":"ada@example.com","password":"sup3rsecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var tokens AuthTokens
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
}

func TestLoginHandlerResponsesAreUniform(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	unknown := postJSON(env.handler.Login, "/login", `{"email":"nobody@example.com","password":"sup3rsecret"}`)
	wrongPass := postJSON(env.handler.Login, "/login", `{"email":"ada@example.com","password":"wrongpassword"}`)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, unknown.Body.String(), wrongPass.Body.String(),
		"unknown email and wrong password must produce identical responses")
}

func TestLoginHandlerUnverified(t *testing.T) {
	env := newHandlerEnv(t)

	rec := postJSON(env.handler.Register, "/register", `{"first_name":"Ada","last_name":"Obi","email":"ada@example.com","password":"sup3rsecret"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	waitForEmail(t, env.email.verificationSent)

	rec = postJSON(env.handler.Login, "/login", `{"email":"ada@example.com","password":"sup3rsecret"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeEmailNotVerified, errorBody(t, rec).Code)
}

func TestVerifyEmailHandler(t *testing.T) {
	env := newHandlerEnv(t)

	u, err := env.service.Register(context.Background(), "Ada", "Obi", "ada@example.com", "sup3rsecret")
	require.NoError(t, err)
	waitForEmail(t, env.email.verificationSent)

	router := chi.NewRouter()
	router.Get("/verify-email/{token}", env.handler.VerifyEmail)

	req := httptest.NewRequest(http.MethodGet, "/verify-email/"+*u.VerificationToken, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/verify-email/no-such-token", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeVerificationFailed, errorBody(t, rec).Code)
}

func TestRefreshHandler(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	tokens, err := env.service.Login(context.Background(), "ada@example.com", "sup3rsecret")
	require.NoError(t, err)

	rec := postJSON(env.handler.Refresh, "/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(env.handler.Refresh, "/refresh", `{"refresh_token":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeRefreshTokenRequired, errorBody(t, rec).Code)

	rec = postJSON(env.handler.Refresh, "/refresh", `{"refresh_token":"never-issued"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidRefreshToken, errorBody(t, rec).Code)
}

func TestLogoutHandler(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	tokens, err := env.service.Login(context.Background(), "ada@example.com", "sup3rsecret")
	require.NoError(t, err)

	rec := postJSON(env.handler.Logout, "/logout", `{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = env.service.RefreshAccessToken(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRateLimitedEndpoints(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.ipExceeded = true

	rec := postJSON(env.handler.Register, "/register", `{"first_name":"Ada","last_name":"Obi","email":"ada@example.com","password":"sup3rsecret"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, errorBody(t, rec).Code)

	rec = postJSON(env.handler.Login, "/login", `{"email":"ada@example.com","password":"sup3rsecret"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, env.limiter.ipRecorded, "blocked requests must not count against the budget")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.err = errors.New("redis down")

	rec := postJSON(env.handler.Register, "/register", `{"first_name":"Ada","last_name":"Obi","email":"ada@example.com","password":"sup3rsecret"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, "a broken limiter must not lock out registration")
	waitForEmail(t, env.email.verificationSent)
}

func TestForgotPasswordEmailCooldown(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.emailCooldown = true

	rec := postJSON(env.handler.ForgotPassword, "/forgot-password", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeCooldownActive, errorBody(t, rec).Code)
	assertNoEmail(t, env.email.resetSent)
}

func TestForgotPasswordHandlerAlwaysSucceeds(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	known := postJSON(env.handler.ForgotPassword, "/forgot-password", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusOK, known.Code)
	waitForEmail(t, env.email.resetSent)

	unknown := postJSON(env.handler.ForgotPassword, "/forgot-password", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String(),
		"known and unknown addresses must produce identical responses")
	assertNoEmail(t, env.email.resetSent)
}

func TestResetPasswordHandler(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, "ada@example.com", "sup3rsecret")

	require.NoError(t, env.service.RequestPasswordReset(context.Background(), "ada@example.com"))
	waitForEmail(t, env.email.resetSent)

	env.reset.mu.Lock()
	var resetToken string
	for token := range env.reset.tokens {
		resetToken = token
	}
	env.reset.mu.Unlock()
	require.NotEmpty(t, resetToken)

	rec := postJSON(env.handler.ResetPassword, "/reset-password", `{"token":"`+resetToken+`","new_password":"newpassword1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(env.handler.ResetPassword, "/reset-password", `{"token":"bogus","new_password":"newpassword1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidResetToken, errorBody(t, rec).Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", getClientIP(req))
}
