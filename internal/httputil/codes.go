package httputil

// Machine-readable error codes returned in error responses. Clients branch on
// these instead of parsing the human-readable message.
const (
	CodeInvalidRequestBody  = "invalid_request_body"
	CodeValidationFailed    = "validation_failed"
	CodeEmailAlreadyExists  = "email_already_exists"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeEmailNotVerified    = "email_not_verified"
	CodeVerificationFailed  = "verification_failed"
	CodeTokenExpired        = "token_expired"
	CodeInvalidToken        = "invalid_token"
	CodeInvalidAuthHeader   = "invalid_auth_header"
	CodeMissingAuth         = "missing_auth"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeRefreshTokenRequired = "refresh_token_required"
	CodeInvalidResetToken   = "invalid_reset_token"
	CodePasswordMismatch    = "password_mismatch"
	CodeWrongPassword       = "wrong_password"
	CodeNoFieldsToUpdate    = "no_fields_to_update"
	CodeUserNotFound        = "user_not_found"
	CodeSelfieRequired      = "selfie_required"
	CodeUnsupportedFileType = "unsupported_file_type"
	CodeTooManyRequests     = "too_many_requests"
	CodeCooldownActive      = "cooldown_active"
	CodeInternalError       = "internal_error"
)
